package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"billing-engine/internal/config"
	"billing-engine/internal/core"
	"billing-engine/internal/money"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const moduleName = "app"

type appService struct {
	store       core.Reader
	invoices    core.InvoiceEngine
	inventory   core.InventoryService
	payments    core.PaymentService
	conversions core.ConversionService
	logger      *logrus.Logger
	validate    *validator.Validate
}

// NewAppService wires the core services behind ApplicationService. A nil guard
// disables cross-instance posting guards.
func NewAppService(store core.Store, guard core.Guard, logger *logrus.Logger) ApplicationService {
	return &appService{
		store:       store,
		invoices:    core.NewInvoiceEngine(store, nil, guard),
		inventory:   core.NewInventoryService(store),
		payments:    core.NewPaymentService(store),
		conversions: core.NewConversionService(store),
		logger:      logger,
		validate:    newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names so messages match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError lists request fields that failed shape validation, keyed
// by field path with the failing rule as value.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return fmt.Sprintf("%s: %s", core.ErrInvalidInput, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return core.ErrInvalidInput }

func (s *appService) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		// Drop the root struct name from the namespace.
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		fields[ns] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

// fail logs a failed write and returns err unchanged. Business rejections are
// expected traffic and logged at warn; anything else is an error.
func (s *appService) fail(funcName string, data any, err error) error {
	if isBusinessError(err) {
		s.logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"data":     data,
		}).Warn(err.Error())
		return err
	}
	config.LogError(s.logger, moduleName, funcName, "write failed", data, err)
	return err
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		core.ErrInsufficientStock, core.ErrInconsistentTaxConfig, core.ErrInvalidQuantity,
		core.ErrInvalidAmount, core.ErrDuplicateLedgerEntry, core.ErrAlreadyVoided,
		core.ErrNotFound, core.ErrInvoiceNotDraft, core.ErrInvoiceNotPosted,
		core.ErrInvoiceVoided, core.ErrMissingReference, core.ErrInvalidInvoice,
		core.ErrDuplicateNumber, core.ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ── Invoices ─────────────────────────────────────────────────────────────────

func (s *appService) PostInvoice(ctx context.Context, req InvoiceRequest) (*core.Invoice, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	draft, err := toDraft(req)
	if err != nil {
		return nil, s.fail("PostInvoice", req, err)
	}
	inv, err := s.invoices.PostDraft(ctx, draft)
	if err != nil {
		return nil, s.fail("PostInvoice", req, err)
	}
	s.logInvoice("invoice posted", inv)
	return inv, nil
}

func (s *appService) CreateDraft(ctx context.Context, req InvoiceRequest) (*core.Invoice, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	draft, err := toDraft(req)
	if err != nil {
		return nil, s.fail("CreateDraft", req, err)
	}
	inv, err := s.invoices.CreateDraft(ctx, draft)
	if err != nil {
		return nil, s.fail("CreateDraft", req, err)
	}
	return inv, nil
}

func (s *appService) UpdateDraftLines(ctx context.Context, id int64, req UpdateLinesRequest) (*core.Invoice, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	inv, err := s.invoices.UpdateDraftLines(ctx, id, toLines(req.Lines))
	if err != nil {
		return nil, s.fail("UpdateDraftLines", logrus.Fields{"invoice_id": id}, err)
	}
	return inv, nil
}

func (s *appService) QuoteInvoice(ctx context.Context, req InvoiceRequest) (*core.Invoice, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	draft, err := toDraft(req)
	if err != nil {
		return nil, err
	}
	return s.invoices.Quote(ctx, draft)
}

func (s *appService) PostDraft(ctx context.Context, id int64) (*core.Invoice, error) {
	inv, err := s.invoices.Post(ctx, id)
	if err != nil {
		return nil, s.fail("PostDraft", logrus.Fields{"invoice_id": id}, err)
	}
	s.logInvoice("invoice posted", inv)
	return inv, nil
}

func (s *appService) VoidInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	inv, err := s.invoices.Void(ctx, id)
	if err != nil {
		return nil, s.fail("VoidInvoice", logrus.Fields{"invoice_id": id}, err)
	}
	s.logInvoice("invoice voided", inv)
	return inv, nil
}

func (s *appService) GetInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	return s.invoices.Get(ctx, id)
}

func (s *appService) logInvoice(msg string, inv *core.Invoice) {
	s.logger.WithFields(logrus.Fields{
		"module":      moduleName,
		"invoice_id":  inv.ID,
		"kind":        inv.Kind,
		"party_id":    inv.PartyID,
		"grand_total": inv.GrandTotal.String(),
	}).Info(msg)
}

// toDraft normalizes tax_mode and gst_type, so "in_tax" and "IN_TAX" are the
// same mode.
func toDraft(req InvoiceRequest) (core.InvoiceDraft, error) {
	mode, err := money.ParseTaxMode(req.TaxMode)
	if err != nil {
		return core.InvoiceDraft{}, fmt.Errorf("%w: tax_mode: %v", core.ErrInconsistentTaxConfig, err)
	}
	d := core.InvoiceDraft{
		Number:      req.Number,
		Kind:        core.InvoiceKind(req.Kind),
		PartyID:     req.PartyID,
		PaymentMode: req.PaymentMode,
		TaxMode:     mode,
		Lines:       toLines(req.Lines),
	}
	if req.GSTType != "" {
		g, err := money.ParseTaxMode(req.GSTType)
		if err != nil {
			return core.InvoiceDraft{}, fmt.Errorf("%w: gst_type: %v", core.ErrInconsistentTaxConfig, err)
		}
		d.GSTType = &g
	}
	return d, nil
}

func toLines(in []InvoiceLineRequest) []core.InvoiceLineInput {
	lines := make([]core.InvoiceLineInput, len(in))
	for i, l := range in {
		lines[i] = core.InvoiceLineInput{
			ItemID:    l.ItemID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Discount:  l.Discount,
			TaxRate:   l.TaxRate,
		}
	}
	return lines
}

// ── Stock ────────────────────────────────────────────────────────────────────

func (s *appService) CreateItem(ctx context.Context, req CreateItemRequest) (*core.Item, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	item, err := s.inventory.CreateItem(ctx, toNewItem(req))
	if err != nil {
		return nil, s.fail("CreateItem", req, err)
	}
	return item, nil
}

func (s *appService) GetItem(ctx context.Context, id int64) (*core.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("item %d: %w", id, err)
	}
	return item, nil
}

func (s *appService) AdjustStock(ctx context.Context, req AdjustStockRequest) (*core.Item, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	item, err := s.inventory.AdjustStock(ctx, req.ItemID, req.Delta, req.Reason, req.ReferenceID)
	if err != nil {
		return nil, s.fail("AdjustStock", req, err)
	}
	return item, nil
}

func (s *appService) ReceiveLot(ctx context.Context, req ReceiveLotRequest) (*core.StockLot, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	lot, err := s.inventory.ReceiveLot(ctx, core.NewStockLot{
		SourceRef: req.SourceRef,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
	})
	if err != nil {
		return nil, s.fail("ReceiveLot", req, err)
	}
	return lot, nil
}

func (s *appService) GetStockLot(ctx context.Context, id int64) (*core.StockLot, error) {
	lot, err := s.store.GetStockLot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("stock lot %d: %w", id, err)
	}
	return lot, nil
}

func (s *appService) ConvertStockToItem(ctx context.Context, req ConvertStockRequest) (*core.ConversionResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	creq := core.ConversionRequest{
		LotID:       req.LotID,
		ReferenceID: req.ReferenceID,
		Targets:     make([]core.ConversionTarget, len(req.Targets)),
	}
	for i, t := range req.Targets {
		creq.Targets[i] = core.ConversionTarget{ItemID: t.ItemID, Quantity: t.Quantity}
		if t.NewItem != nil {
			n := toNewItem(*t.NewItem)
			creq.Targets[i].NewItem = &n
		}
	}
	res, err := s.conversions.MoveToItems(ctx, creq)
	if err != nil {
		return nil, s.fail("ConvertStockToItem", req, err)
	}
	s.logger.WithFields(logrus.Fields{
		"module":       moduleName,
		"lot_id":       req.LotID,
		"reference_id": res.ReferenceID,
		"moved":        res.Moved.String(),
	}).Info("stock converted")
	return res, nil
}

func (s *appService) History(ctx context.Context, target core.LedgerTarget, id int64) (*HistoryResult, error) {
	entries, err := s.inventory.History(ctx, target, id)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{Target: target, TargetID: id, Entries: entries}, nil
}

func toNewItem(req CreateItemRequest) core.NewItem {
	return core.NewItem{
		Name:            req.Name,
		SKU:             req.SKU,
		Unit:            req.Unit,
		UnitPrice:       req.UnitPrice,
		TaxRate:         req.TaxRate,
		OpeningQuantity: req.OpeningQuantity,
	}
}

// ── Parties ──────────────────────────────────────────────────────────────────

func (s *appService) CreateParty(ctx context.Context, req CreatePartyRequest) (*core.Party, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	party, err := s.payments.CreateParty(ctx, core.NewParty{
		Name:           req.Name,
		Role:           core.PartyRole(req.Role),
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		return nil, s.fail("CreateParty", req, err)
	}
	return party, nil
}

func (s *appService) GetParty(ctx context.Context, id int64) (*core.Party, error) {
	party, err := s.store.GetParty(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("party %d: %w", id, err)
	}
	return party, nil
}

func (s *appService) ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (*core.Party, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	party, err := s.payments.Apply(ctx, req.PartyID, req.Amount, core.PaymentDirection(req.Direction), req.ReferenceID)
	if err != nil {
		return nil, s.fail("ApplyPayment", req, err)
	}
	return party, nil
}

func (s *appService) VoidPayment(ctx context.Context, partyID int64, referenceID string) (*core.Party, error) {
	party, err := s.payments.Void(ctx, partyID, referenceID)
	if err != nil {
		return nil, s.fail("VoidPayment", logrus.Fields{"party_id": partyID, "reference_id": referenceID}, err)
	}
	return party, nil
}
