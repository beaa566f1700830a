package models

import "testing"

func TestReturnTransitions(t *testing.T) {
	cases := []struct {
		from    ReturnStatus
		to      ReturnStatus
		allowed bool
	}{
		{ReturnStatusPending, ReturnStatusApproved, true},
		{ReturnStatusPending, ReturnStatusRejected, true},
		{ReturnStatusPending, ReturnStatusPickedUp, false},
		{ReturnStatusApproved, ReturnStatusPickedUp, true},
		{ReturnStatusApproved, ReturnStatusRejected, false},
		{ReturnStatusPickedUp, ReturnStatusQualityCheck, true},
		{ReturnStatusQualityCheck, ReturnStatusQualityApproved, true},
		{ReturnStatusQualityCheck, ReturnStatusQualityRejected, true},
		{ReturnStatusQualityCheck, ReturnStatusRefundProcessed, false},
		{ReturnStatusQualityApproved, ReturnStatusRefundPending, true},
		{ReturnStatusQualityApproved, ReturnStatusRefundProcessed, false},
		{ReturnStatusQualityRejected, ReturnStatusRefundPending, false},
		{ReturnStatusRefundPending, ReturnStatusRefundProcessed, true},
		{ReturnStatusRefundPending, ReturnStatusQualityApproved, true},
		{ReturnStatusRefundPending, ReturnStatusCompleted, false},
		{ReturnStatusRefundProcessed, ReturnStatusCompleted, true},
		{ReturnStatusCompleted, ReturnStatusRefundProcessed, false},
		{ReturnStatusRejected, ReturnStatusApproved, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestReturnIsClosed(t *testing.T) {
	closed := map[ReturnStatus]bool{
		ReturnStatusPending:         false,
		ReturnStatusApproved:        false,
		ReturnStatusPickedUp:        false,
		ReturnStatusQualityCheck:    false,
		ReturnStatusQualityApproved: false,
		ReturnStatusQualityRejected: false,
		ReturnStatusRefundPending:   false,
		ReturnStatusRefundProcessed: false,
		ReturnStatusCompleted:       true,
		ReturnStatusRejected:        true,
	}

	for status, want := range closed {
		if got := status.IsClosed(); got != want {
			t.Errorf("%s: expected IsClosed %v, got %v", status, want, got)
		}
	}
}

func TestConditionEligibility(t *testing.T) {
	eligible := map[ItemCondition]bool{
		ConditionSellable:  true,
		ConditionOpened:    true,
		ConditionDamaged:   false,
		ConditionWrongItem: false,
	}

	for condition, want := range eligible {
		if got := condition.EligibleForFullRefund(); got != want {
			t.Errorf("%s: expected eligibility %v, got %v", condition, want, got)
		}
	}
}
