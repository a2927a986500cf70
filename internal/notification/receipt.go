package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"

	accountdomain "github.com/smallbiznis/revenue/internal/account/domain"
	billingdomain "github.com/smallbiznis/revenue/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/revenue/internal/catalog/domain"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"github.com/smallbiznis/revenue/internal/providers/pdf"
	userdomain "github.com/smallbiznis/revenue/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	receiptSubject = "Your Receipt"
	receiptIssuer  = "County Revenue Portal"
	receiptDate    = "02 Jan 2006 15:04 MST"
)

// Receipt is everything a payer sees about one completed payment.
type Receipt struct {
	Payment       paymentdomain.Payment
	Email         string
	FirstName     string
	LastName      string
	ServiceName   string
	AccountNumber string
	BillNumber    string
	Lines         []pdf.ReceiptLine
}

func (r Receipt) templateData() map[string]string {
	return map[string]string{
		"FirstName":     r.FirstName,
		"ServiceName":   r.ServiceName,
		"TransactionID": r.Payment.TransactionID,
		"AccountNumber": r.AccountNumber,
		"Currency":      r.Payment.Currency,
		"Amount":        r.Payment.Amount.StringFixed(2),
		"Fee":           r.Payment.Fee.StringFixed(2),
		"Total":         r.Payment.Total.StringFixed(2),
		"Date":          r.paidAt(),
	}
}

// PDFData formats the receipt for the PDF renderer.
func (r Receipt) PDFData() pdf.ReceiptData {
	return pdf.ReceiptData{
		Issuer:        receiptIssuer,
		TransactionID: r.Payment.TransactionID,
		BillNumber:    r.BillNumber,
		AccountNumber: r.AccountNumber,
		ServiceName:   r.ServiceName,
		ServiceCode:   r.Payment.ServiceCode,
		PayerName:     strings.TrimSpace(r.FirstName + " " + r.LastName),
		PayerEmail:    r.Email,
		Status:        string(r.Payment.Status),
		Currency:      r.Payment.Currency,
		Amount:        r.Payment.Amount.StringFixed(2),
		Fee:           r.Payment.Fee.StringFixed(2),
		Total:         r.Payment.Total.StringFixed(2),
		DatePaid:      r.paidAt(),
		Lines:         r.Lines,
	}
}

func (r Receipt) paidAt() string {
	if r.Payment.CompletedAt != nil {
		return r.Payment.CompletedAt.Format(receiptDate)
	}
	return r.Payment.CreatedAt.Format(receiptDate)
}

type ComposerParams struct {
	fx.In

	DB         *gorm.DB
	UserSvc    userdomain.Service
	CatalogSvc catalogdomain.Service
	AccountSvc accountdomain.Service
	BillRepo   billingdomain.Repository
}

// Composer gathers the payer, service, and bill behind a payment.
type Composer struct {
	db         *gorm.DB
	userSvc    userdomain.Service
	catalogSvc catalogdomain.Service
	accountSvc accountdomain.Service
	billRepo   billingdomain.Repository
}

func NewComposer(p ComposerParams) *Composer {
	return &Composer{
		db:         p.DB,
		userSvc:    p.UserSvc,
		catalogSvc: p.CatalogSvc,
		accountSvc: p.AccountSvc,
		billRepo:   p.BillRepo,
	}
}

func (c *Composer) Compose(ctx context.Context, payment paymentdomain.Payment) (Receipt, error) {
	user, err := c.userSvc.GetByID(ctx, payment.UserID)
	if err != nil {
		return Receipt{}, fmt.Errorf("load payer: %w", err)
	}

	receipt := Receipt{
		Payment:     payment,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		ServiceName: payment.ServiceCode,
	}

	if def, err := c.catalogSvc.GetByCode(ctx, payment.ServiceCode); err == nil {
		receipt.ServiceName = def.Name
	}
	if account, err := c.accountSvc.Get(ctx, payment.ServiceAccountID); err == nil {
		receipt.AccountNumber = account.AccountNumber
	}

	bill, err := c.billRepo.FindByID(ctx, c.db, payment.BillID)
	if err != nil {
		return Receipt{}, fmt.Errorf("load bill: %w", err)
	}
	if bill != nil {
		receipt.BillNumber = bill.BillNumber
		receipt.Lines = detailLines(bill.Details)
	}
	return receipt, nil
}

func detailLines(details map[string]any) []pdf.ReceiptLine {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]pdf.ReceiptLine, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, pdf.ReceiptLine{
			Label: strings.ReplaceAll(k, "_", " "),
			Value: fmt.Sprint(details[k]),
		})
	}
	return lines
}
