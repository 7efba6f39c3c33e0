package invoice

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/phpdave11/gofpdf"
	qrcode "github.com/skip2/go-qrcode"

	"vitrina/globals"
	"vitrina/models"
	"vitrina/orders"
	"vitrina/utils"
)

var hmacSecret = []byte(globals.EnvOr("INVOICE_HMAC_SECRET", "invoice-signing-secret"))

// qrPayload returns orderID|paymentRef|timestamp|signature so a scanned
// invoice can be verified against tampering.
func qrPayload(order *models.Order) string {
	data := fmt.Sprintf("%s|%s|%d", order.OrderID, order.PaymentIntentID, order.CreatedAt.Unix())
	h := hmac.New(sha256.New, hmacSecret)
	h.Write([]byte(data))
	sig := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("%s|%s", data, sig)
}

// Handler renders order invoices as PDF.
type Handler struct {
	Orders orders.OrderStore
}

// OrderInvoice serves the PDF for one order, to its owner or an admin.
func (h *Handler) OrderInvoice(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	order, err := h.Orders.Get(ctx, ps.ByName("orderid"))
	if err != nil {
		utils.RespondWithError(w, orders.HTTPStatus(err), err.Error())
		return
	}

	userID := utils.GetUserIDFromRequest(r)
	roles, _ := r.Context().Value(globals.RoleKey).([]string)
	if order.UserID != userID && !utils.Contains(roles, "admin") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	qrPNG, err := qrcode.Encode(qrPayload(order), qrcode.Medium, 256)
	if err != nil {
		log.Println("invoice QR error:", err)
		http.Error(w, "Failed to generate invoice", http.StatusInternalServerError)
		return
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Invoice")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Order: %s", order.OrderID))
	pdf.Ln(8)
	pdf.Cell(0, 8, fmt.Sprintf("Date: %s", order.CreatedAt.Format("2006-01-02 15:04")))
	pdf.Ln(8)
	pdf.Cell(0, 8, fmt.Sprintf("Customer: %s", order.ShippingInfo.Name))
	pdf.Ln(8)
	pdf.Cell(0, 8, fmt.Sprintf("Ship to: %s, %s %s", order.ShippingInfo.Address, order.ShippingInfo.City, order.ShippingInfo.PostalCode))
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(90, 8, "Item")
	pdf.Cell(30, 8, "Qty")
	pdf.Cell(30, 8, "Unit")
	pdf.Cell(30, 8, "Amount")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 12)
	for _, item := range order.Items {
		pdf.Cell(90, 8, item.Name)
		pdf.Cell(30, 8, fmt.Sprintf("%d", item.Quantity))
		pdf.Cell(30, 8, fmt.Sprintf("%.2f", item.UnitPrice))
		pdf.Cell(30, 8, fmt.Sprintf("%.2f", item.UnitPrice*float64(item.Quantity)))
		pdf.Ln(8)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(150, 8, "Total")
	pdf.Cell(30, 8, fmt.Sprintf("%.2f RON", order.Total))
	pdf.Ln(16)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("invoice-qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("invoice-qr", 10, pdf.GetY(), 40, 40, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		log.Println("invoice PDF error:", err)
		http.Error(w, "Failed to generate invoice", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=invoice-%s.pdf", order.OrderID))
	w.Write(buf.Bytes())
}
