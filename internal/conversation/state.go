package conversation

import (
	domain "github.com/hanko-field/storebot/internal/domain"
)

// Kind names a conversation state variant.
type Kind string

const (
	KindIdle                 Kind = "idle"
	KindBrowsing             Kind = "browsing"
	KindAwaitingQuantity     Kind = "awaiting_quantity"
	KindConfirmingQuantity   Kind = "confirming_quantity"
	KindCollectingName       Kind = "collecting_name"
	KindCollectingPhone      Kind = "collecting_phone"
	KindCollectingAddress    Kind = "collecting_address"
	KindAwaitingConfirmation Kind = "awaiting_confirmation"
)

// State is the per-chat scratch record. Each variant carries only the fields valid for it;
// the set of variants is closed.
type State interface {
	Kind() Kind
	isState()
}

// Idle is the empty state.
type Idle struct{}

// Browsing holds the product list of the current subcategory screen and the cursor into it.
type Browsing struct {
	CategoryID    string
	SubcategoryID string
	ProductIDs    []string
	Cursor        int
}

// ProductID returns the product under the cursor, or "" when the list is empty.
func (b Browsing) ProductID() string {
	if b.Cursor < 0 || b.Cursor >= len(b.ProductIDs) {
		return ""
	}
	return b.ProductIDs[b.Cursor]
}

// AwaitingQuantity waits for the user to type a quantity for the product under the cursor.
type AwaitingQuantity struct {
	Browsing Browsing
}

// ConfirmingQuantity waits for the user to confirm adding Quantity units.
type ConfirmingQuantity struct {
	Browsing Browsing
	Quantity int
}

// CollectingName is the first checkout step. AttemptID identifies the checkout attempt
// across all steps.
type CollectingName struct {
	AttemptID string
}

// CollectingPhone holds the accepted name.
type CollectingPhone struct {
	AttemptID string
	Name      string
}

// CollectingAddress holds the accepted name and phone.
type CollectingAddress struct {
	AttemptID string
	Name      string
	Phone     string
}

// AwaitingConfirmation holds the complete recipient and waits for confirm or cancel.
type AwaitingConfirmation struct {
	AttemptID string
	Recipient domain.Recipient
}

func (Idle) Kind() Kind { return KindIdle }
func (Browsing) Kind() Kind { return KindBrowsing }
func (AwaitingQuantity) Kind() Kind { return KindAwaitingQuantity }
func (ConfirmingQuantity) Kind() Kind { return KindConfirmingQuantity }
func (CollectingName) Kind() Kind { return KindCollectingName }
func (CollectingPhone) Kind() Kind { return KindCollectingPhone }
func (CollectingAddress) Kind() Kind { return KindCollectingAddress }
func (AwaitingConfirmation) Kind() Kind { return KindAwaitingConfirmation }

func (Idle) isState() {}
func (Browsing) isState() {}
func (AwaitingQuantity) isState() {}
func (ConfirmingQuantity) isState() {}
func (CollectingName) isState() {}
func (CollectingPhone) isState() {}
func (CollectingAddress) isState() {}
func (AwaitingConfirmation) isState() {}

// BrowsingOf returns the navigation cursor carried by s, if any.
func BrowsingOf(s State) (Browsing, bool) {
	switch v := s.(type) {
	case Browsing:
		return v, true
	case AwaitingQuantity:
		return v.Browsing, true
	case ConfirmingQuantity:
		return v.Browsing, true
	default:
		return Browsing{}, false
	}
}

// InCheckout reports whether s is one of the checkout dialogue steps.
func InCheckout(s State) bool {
	switch s.(type) {
	case CollectingName, CollectingPhone, CollectingAddress, AwaitingConfirmation:
		return true
	default:
		return false
	}
}
