package marketplace

import (
	"fmt"

	"nft/seller/internal/browser"
)

// Status is what the listing page says about an item.
type Status int

const (
	StatusUnknown Status = iota
	StatusListed
	StatusNeedsListing
)

func (s Status) String() string {
	switch s {
	case StatusListed:
		return "listed"
	case StatusNeedsListing:
		return "needs_listing"
	default:
		return "unknown"
	}
}

// Markup holds every selector and class literal the listing flow depends on,
// so a front-end change only touches this table (or the markup config section).
type Markup struct {
	ListedClass         string `mapstructure:"listed_class"`
	ListedSelector      string `mapstructure:"listed_selector"`
	ListForSaleClass    string `mapstructure:"list_for_sale_class"`
	ListForSaleSelector string `mapstructure:"list_for_sale_selector"`
	PriceInputID        string `mapstructure:"price_input_id"`
	SubmitSelector      string `mapstructure:"submit_selector"`
	ExpandSelector      string `mapstructure:"expand_selector"`
	SignSelector        string `mapstructure:"sign_selector"`
}

// OpenSea returns the markup of the OpenSea asset page and the MetaMask
// signature request window.
func OpenSea() Markup {
	const (
		listed      = "sc-29427738-0 sc-788bb508-0 brbNiF bBXuZv"
		listForSale = "sc-1f719d57-0 fKAlPV sc-29427738-0 sc-788bb508-0 brbNiF bBXuZv"
	)
	return Markup{
		ListedClass:         listed,
		ListedSelector:      fmt.Sprintf("button[class='%s']", listed),
		ListForSaleClass:    listForSale,
		ListForSaleSelector: fmt.Sprintf("a[class='%s']", listForSale),
		PriceInputID:        "price",
		SubmitSelector:      "button[type='submit']",
		ExpandSelector:      "i[class='fa fa-arrow-down']",
		SignSelector:        "button[data-testid='signature-sign-button']",
	}
}

func (m Markup) Validate() error {
	fields := map[string]string{
		"listed_class":           m.ListedClass,
		"listed_selector":        m.ListedSelector,
		"list_for_sale_class":    m.ListForSaleClass,
		"list_for_sale_selector": m.ListForSaleSelector,
		"price_input_id":         m.PriceInputID,
		"submit_selector":        m.SubmitSelector,
		"expand_selector":        m.ExpandSelector,
		"sign_selector":          m.SignSelector,
	}
	for name, v := range fields {
		if v == "" {
			return fmt.Errorf("markup.%s must not be empty", name)
		}
	}
	if m.ListedClass == m.ListForSaleClass {
		return fmt.Errorf("markup.listed_class and markup.list_for_sale_class must differ")
	}
	return nil
}

// StatusSelectors returns the "already listed" marker first and the "list for
// sale" action as fallback.
func (m Markup) StatusSelectors() []browser.Selector {
	return []browser.Selector{browser.CSS(m.ListedSelector), browser.CSS(m.ListForSaleSelector)}
}

// Classify maps the class attribute of the status element to a Status. Only
// exact matches count.
func (m Markup) Classify(class string, present bool) Status {
	if !present {
		return StatusUnknown
	}
	switch class {
	case m.ListedClass:
		return StatusListed
	case m.ListForSaleClass:
		return StatusNeedsListing
	default:
		return StatusUnknown
	}
}

func (m Markup) PriceInput() browser.Selector {
	return browser.ID(m.PriceInputID)
}

func (m Markup) Submit() browser.Selector {
	return browser.CSS(m.SubmitSelector)
}

func (m Markup) Expand() browser.Selector {
	return browser.CSS(m.ExpandSelector)
}

func (m Markup) Sign() browser.Selector {
	return browser.CSS(m.SignSelector)
}
