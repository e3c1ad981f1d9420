package tools

import "github.com/toolcrib/toolcrib/internal/shared"

type createToolRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	SKU             string `json:"sku" validate:"max=100"`
	Barcode         string `json:"barcode" validate:"max=200"`
	QRCode          string `json:"qr_code" validate:"max=500"`
	InventoryNumber string `json:"inventory_number" validate:"max=100"`
	Quantity        int    `json:"quantity" validate:"gte=0"`
}

type issueRequest struct {
	EmployeeID int64 `json:"employee_id" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"required,gte=1"`
}

type returnRequest struct {
	IssueID  int64 `json:"issue_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gte=1"`
}

type sendToServiceRequest struct {
	Quantity           int    `json:"quantity" validate:"required,gte=1"`
	ServiceOrderNumber string `json:"service_order_number" validate:"max=100"`
}

type receiveRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

type listResponse struct {
	Items      []Tool            `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}
