package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReturnStatus string

const (
	ReturnStatusPending         ReturnStatus = "PENDING"
	ReturnStatusApproved        ReturnStatus = "APPROVED"
	ReturnStatusPickedUp        ReturnStatus = "PICKED_UP"
	ReturnStatusQualityCheck    ReturnStatus = "QUALITY_CHECK"
	ReturnStatusQualityApproved ReturnStatus = "QUALITY_APPROVED"
	ReturnStatusQualityRejected ReturnStatus = "QUALITY_REJECTED"
	ReturnStatusRefundPending   ReturnStatus = "REFUND_PENDING"
	ReturnStatusRefundProcessed ReturnStatus = "REFUND_PROCESSED"
	ReturnStatusCompleted       ReturnStatus = "COMPLETED"
	ReturnStatusRejected        ReturnStatus = "REJECTED"
)

var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnStatusPending:         {ReturnStatusApproved, ReturnStatusRejected},
	ReturnStatusApproved:        {ReturnStatusPickedUp},
	ReturnStatusPickedUp:        {ReturnStatusQualityCheck},
	ReturnStatusQualityCheck:    {ReturnStatusQualityApproved, ReturnStatusQualityRejected},
	ReturnStatusQualityApproved: {ReturnStatusRefundPending},
	ReturnStatusQualityRejected: {},
	// REFUND_PENDING marks a refund claimed but not yet confirmed by the
	// gateway; a failed gateway call hands it back to QUALITY_APPROVED.
	ReturnStatusRefundPending:   {ReturnStatusRefundProcessed, ReturnStatusQualityApproved},
	ReturnStatusRefundProcessed: {ReturnStatusCompleted},
	ReturnStatusCompleted:       {},
	ReturnStatusRejected:        {},
}

func (s ReturnStatus) CanTransitionTo(target ReturnStatus) bool {
	for _, next := range returnTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsClosed reports whether the request has reached a terminal outcome.
// Evidence images may be attached up to that point.
func (s ReturnStatus) IsClosed() bool {
	return s == ReturnStatusCompleted || s == ReturnStatusRejected
}

type ItemCondition string

const (
	ConditionSellable  ItemCondition = "SELLABLE"
	ConditionOpened    ItemCondition = "OPENED"
	ConditionDamaged   ItemCondition = "DAMAGED"
	ConditionWrongItem ItemCondition = "WRONG_ITEM"
)

// EligibleForFullRefund reports whether goods received in this condition
// qualify the request for the quality-approved path.
func (c ItemCondition) EligibleForFullRefund() bool {
	return c == ConditionSellable || c == ConditionOpened
}

// ReturnRequest drives a single order's RMA from creation to refund.
type ReturnRequest struct {
	ID                int64               `json:"id"`
	TenantID          string              `json:"tenant_id"`
	OrderID           int64               `json:"order_id"`
	RMANumber         string              `json:"rma_number"`
	Status            ReturnStatus        `json:"status"`
	Reason            string              `json:"reason,omitempty"`
	TotalReturnAmount decimal.Decimal     `json:"total_return_amount"`
	RefundAmount      decimal.Decimal     `json:"refund_amount"`
	ApprovedBy        string              `json:"approved_by,omitempty"`
	ApprovalNotes     string              `json:"approval_notes,omitempty"`
	RejectionReason   string              `json:"rejection_reason,omitempty"`
	RefundRef         string              `json:"refund_ref,omitempty"`
	Items             []ReturnRequestItem `json:"items,omitempty"`
	Images            []string            `json:"images,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

type ReturnRequestItem struct {
	ID                   int64           `json:"id"`
	ReturnRequestID      int64           `json:"return_request_id"`
	OrderItemID          int64           `json:"order_item_id"`
	Quantity             int             `json:"quantity"`
	ApprovedQuantity     int             `json:"approved_quantity"`
	Condition            ItemCondition   `json:"condition,omitempty"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	ReturnAmount         decimal.Decimal `json:"return_amount"`
	ApprovedReturnAmount decimal.Decimal `json:"approved_return_amount"`
}
