package inventory

import "github.com/toolcrib/toolcrib/internal/shared"

type createSessionRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Notes string `json:"notes" validate:"max=2000"`
}

type changeStatusRequest struct {
	Action string `json:"action" validate:"required,oneof=pause resume end"`
}

type scanRequest struct {
	Code     string `json:"code" validate:"required,max=500"`
	Quantity int    `json:"quantity" validate:"required,gte=1"`
}

type proposeRequest struct {
	ToolID        int64  `json:"tool_id" validate:"required,gt=0"`
	DifferenceQty int    `json:"difference_qty" validate:"required,ne=0"`
	Reason        string `json:"reason" validate:"max=1000"`
	CountedQty    *int   `json:"counted_qty" validate:"omitempty,gte=0"`
}

type sessionListResponse struct {
	Items      []Session         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}
