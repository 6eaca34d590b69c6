package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/clients/commerce"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
	"github.com/marlowe/storefront-backend/internal/types"
)

func testLogger(t interface{ Fatalf(string, ...interface{}) }) *logger.Logger {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

// fakeCookies implements CookieChannel in memory.
type fakeCookies struct {
	deviceID string
	cartID   string
	hasCart  bool
}

func (f *fakeCookies) DeviceID() string { return f.deviceID }
func (f *fakeCookies) CartCookie() (string, bool) {
	if !f.hasCart {
		return "", false
	}
	return f.cartID, true
}
func (f *fakeCookies) SetCartCookie(cartID string, _ time.Duration) {
	f.cartID = cartID
	f.hasCart = true
}
func (f *fakeCookies) ClearCartCookie() {
	f.cartID = ""
	f.hasCart = false
}

// fakeStore implements the redis Store in memory.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	tags map[string]map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data: map[string]string{},
		tags: map[string]map[string]bool{},
	}
}

func (s *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key, val string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = val
	return nil
}

func (s *fakeStore) SetNX(_ context.Context, key, val string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = val
	return true, nil
}

func (s *fakeStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *fakeStore) Tag(_ context.Context, tag string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.tags[tag]
	if !ok {
		set = map[string]bool{}
		s.tags[tag] = set
	}
	for _, k := range keys {
		set[k] = true
	}
	return nil
}

func (s *fakeStore) InvalidateTag(_ context.Context, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.tags[tag] {
		delete(s.data, k)
	}
	delete(s.tags, tag)
	return nil
}

func (s *fakeStore) Close() error { return nil }

// fakeCommerce is a scriptable in-memory commerce backend. It records
// call order so tests can assert the shipping-clear-before-action rule.
type fakeCommerce struct {
	mu    sync.Mutex
	calls []string

	carts    map[string]*types.Cart
	nextCart int
	nextItem int

	options []types.ShippingOption
	rates   map[string]*commerce.CalculatedRate
	rateErr error

	account      *types.LoyaltyAccount
	loyaltyErr   error
	noCartIDs    map[string]bool
	completeRes  *commerce.CompleteResult
	completeErr  error
	calcDelay    time.Duration
	loyaltyPromo string
	// removeKeepsPromo simulates a backend that drops the metadata tag
	// but fails to detach the promotion.
	removeKeepsPromo bool
}

// cloneCart mimics the real client, where every response decodes into a
// fresh struct: carts handed out never alias the fake's stored state.
func cloneCart(c *types.Cart) *types.Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = append([]types.LineItem(nil), c.Items...)
	out.ShippingMethods = append([]types.ShippingMethod(nil), c.ShippingMethods...)
	out.Promotions = append([]types.Promotion(nil), c.Promotions...)
	if c.ShippingAddress != nil {
		addr := *c.ShippingAddress
		out.ShippingAddress = &addr
	}
	if c.BillingAddress != nil {
		addr := *c.BillingAddress
		out.BillingAddress = &addr
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.PaymentCollection != nil {
		pc := *c.PaymentCollection
		pc.PaymentSessions = append([]types.PaymentSession(nil), c.PaymentCollection.PaymentSessions...)
		out.PaymentCollection = &pc
	}
	return &out
}

func newFakeCommerce() *fakeCommerce {
	return &fakeCommerce{
		carts:        map[string]*types.Cart{},
		rates:        map[string]*commerce.CalculatedRate{},
		noCartIDs:    map[string]bool{},
		loyaltyPromo: "promo_loyalty",
	}
}

func (f *fakeCommerce) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCommerce) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeCommerce) cart(id string) (*types.Cart, error) {
	if f.noCartIDs[id] {
		return nil, checkouterr.NoCart()
	}
	c, ok := f.carts[id]
	if !ok {
		return nil, checkouterr.NoCart()
	}
	return c, nil
}

func (f *fakeCommerce) recomputeTotals(c *types.Cart) {
	var subtotal int64
	for i := range c.Items {
		c.Items[i].Total = c.Items[i].UnitPrice * int64(c.Items[i].Quantity)
		subtotal += c.Items[i].Total
	}
	c.Subtotal = subtotal
	c.ShippingTotal = 0
	if m := c.ShippingMethod(); m != nil {
		c.ShippingTotal = m.Amount
	}
	c.Total = c.Subtotal + c.ShippingTotal + c.TaxTotal - c.DiscountTotal
}

func (f *fakeCommerce) GetCart(_ context.Context, cartID string) (*types.Cart, error) {
	f.record("GetCart:" + cartID)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.cart(cartID)
	if err != nil {
		return nil, err
	}
	return cloneCart(c), nil
}

func (f *fakeCommerce) CreateCart(_ context.Context, in commerce.CreateCartInput) (*types.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCart++
	id := fmt.Sprintf("cart_%d", f.nextCart)
	f.calls = append(f.calls, "CreateCart:"+id)
	cart := &types.Cart{
		ID:           id,
		RegionID:     in.RegionID,
		CurrencyCode: "usd",
		Metadata:     map[string]string{},
	}
	for k, v := range in.Metadata {
		cart.Metadata[k] = v
	}
	f.carts[id] = cart
	return cloneCart(cart), nil
}

func (f *fakeCommerce) UpdateCart(_ context.Context, cartID string, in commerce.UpdateCartInput) (*types.Cart, error) {
	f.record("UpdateCart:" + cartID)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.cart(cartID)
	if err != nil {
		return nil, err
	}
	if in.RegionID != "" {
		c.RegionID = in.RegionID
	}
	if in.Email != "" {
		c.Email = in.Email
	}
	if in.ShippingAddress != nil {
		c.ShippingAddress = in.ShippingAddress
	}
	if in.BillingAddress != nil {
		c.BillingAddress = in.BillingAddress
	}
	if in.PromoCodes != nil {
		promos := make([]types.Promotion, 0, len(in.PromoCodes))
		for i, code := range in.PromoCodes {
			promos = append(promos, types.Promotion{ID: fmt.Sprintf("promo_%d", i+1), Code: code})
		}
		c.Promotions = promos
	}
	f.recomputeTotals(c)
	return cloneCart(c), nil
}

func (f *fakeCommerce) ResetCart(_ context.Context, cartID string) error {
	f.record("ResetCart:" + cartID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.carts[cartID]; ok {
		c.Items = nil
		c.ShippingMethods = nil
		f.recomputeTotals(c)
	}
	return nil
}

func (f *fakeCommerce) CompleteCart(_ context.Context, cartID string) (*commerce.CompleteResult, error) {
	f.record("CompleteCart:" + cartID)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	if f.completeRes != nil {
		return f.completeRes, nil
	}
	return &commerce.CompleteResult{Type: "order", Order: &types.Order{ID: "order_1"}}, nil
}

func (f *fakeCommerce) AddLineItem(_ context.Context, cartID, variantID string, quantity int) (*types.Cart, error) {
	f.record("AddLineItem:" + cartID)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.cart(cartID)
	if err != nil {
		return nil, err
	}
	f.nextItem++
	c.Items = append(c.Items, types.LineItem{
		ID:        fmt.Sprintf("item_%d", f.nextItem),
		VariantID: variantID,
		Quantity:  quantity,
		UnitPrice: 2500,
	})
	f.recomputeTotals(c)
	return cloneCart(c), nil
}

func (f *fakeCommerce) UpdateLineItem(_ context.Context, cartID, lineItemID string, quantity int) (*types.Cart, error) {
	f.record("UpdateLineItem:" + cartID)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.cart(cartID)
	if err != nil {
		return nil, err
	}
	for i := range c.Items {
		if c.Items[i].ID == lineItemID {
			c.Items[i].Quantity = quantity
		}
	}
	f.recomputeTotals(c)
	return cloneCart(c), nil
}

func (f *fakeCommerce) RemoveLineItem(_ context.Context, cartID, lineItemID string) error {
	f.record("RemoveLineItem:" + cartID)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.cart(cartID)
	if err != nil {
		return err
	}
	items := c.Items[:0]
	for _, item := range c.Items {
		if item.ID != lineItemID {
			items = append(items, item)
		}
	}
	c.Items = items
	f.recomputeTotals(c)
	return nil
}

func (f *fakeCommerce) ListShippingOptions(_ context.Context, cartID string) ([]types.ShippingOption, error) {
	f.record("ListShippingOptions:" + cartID)
	return f.options, nil
}

func (f *fakeCommerce) CalculateShippingOption(_ context.Context, cartID, optionID string) (*commerce.CalculatedRate, error) {
	f.record("CalculateShippingOption:" + optionID)
	if f.calcDelay > 0 {
		time.Sleep(f.calcDelay)
	}
	if f.rateErr != nil {
		return nil, checkouterr.RateUnavailable(optionID, f.rateErr)
	}
	rate, ok := f.rates[optionID]
	if !ok {
		return nil, checkouterr.RateUnavailable(optionID, fmt.Errorf("no rate configured"))
	}
	return rate, nil
}

func (f *fakeCommerce) AddShippingMethod(_ context.Context, cartID, optionID string, amount int64) (*types.Cart, error) {
	f.record("AddShippingMethod:" + cartID)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.cart(cartID)
	if err != nil {
		return nil, err
	}
	c.ShippingMethods = []types.ShippingMethod{{
		ID:               "sm_" + optionID,
		ShippingOptionID: optionID,
		Amount:           amount,
	}}
	f.recomputeTotals(c)
	return cloneCart(c), nil
}

func (f *fakeCommerce) ClearShippingMethods(_ context.Context, cartID string) error {
	f.record("ClearShippingMethods:" + cartID)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.cart(cartID)
	if err != nil {
		return err
	}
	c.ShippingMethods = nil
	f.recomputeTotals(c)
	return nil
}

func (f *fakeCommerce) LoyaltyAccount(_ context.Context) (*types.LoyaltyAccount, error) {
	f.record("LoyaltyAccount")
	if f.loyaltyErr != nil {
		return nil, f.loyaltyErr
	}
	return f.account, nil
}

func (f *fakeCommerce) ApplyLoyalty(_ context.Context, cartID string) (*types.Cart, error) {
	f.record("ApplyLoyalty:" + cartID)
	if f.loyaltyErr != nil {
		return nil, f.loyaltyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.cart(cartID)
	if err != nil {
		return nil, err
	}
	c.Promotions = append(c.Promotions, types.Promotion{ID: f.loyaltyPromo, IsAutomatic: true})
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	c.Metadata[types.MetadataLoyaltyPromoID] = f.loyaltyPromo
	return cloneCart(c), nil
}

func (f *fakeCommerce) RemoveLoyalty(_ context.Context, cartID string) (*types.Cart, error) {
	f.record("RemoveLoyalty:" + cartID)
	if f.loyaltyErr != nil {
		return nil, f.loyaltyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.cart(cartID)
	if err != nil {
		return nil, err
	}
	if !f.removeKeepsPromo {
		promos := c.Promotions[:0]
		for _, p := range c.Promotions {
			if p.ID != f.loyaltyPromo {
				promos = append(promos, p)
			}
		}
		c.Promotions = promos
	}
	delete(c.Metadata, types.MetadataLoyaltyPromoID)
	return cloneCart(c), nil
}

func (f *fakeCommerce) AttachCustomer(_ context.Context, cartID string) (*types.Cart, error) {
	f.record("AttachCustomer:" + cartID)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.cart(cartID)
	if err != nil {
		return nil, err
	}
	c.CustomerID = "cus_1"
	return cloneCart(c), nil
}

func (f *fakeCommerce) AttachAttribution(_ context.Context, cartID, repCode string) error {
	f.record("AttachAttribution:" + cartID)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.cart(cartID)
	if err != nil {
		return err
	}
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	c.Metadata[types.MetadataSalesRepCode] = repCode
	return nil
}

var _ commerce.Client = (*fakeCommerce)(nil)
