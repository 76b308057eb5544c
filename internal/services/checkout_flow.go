package services

import (
	"errors"
	"strconv"
	"strings"

	"github.com/hanko-field/storebot/internal/conversation"
	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/platform/textutil"
)

const (
	minNameLength    = 3
	minPhoneLength   = 10
	minAddressLength = 10
)

// ErrCheckoutInvalidInput indicates a dialogue answer failed validation. The state is kept.
var ErrCheckoutInvalidInput = errors.New("checkout: invalid input")

// ErrCheckoutEmptyCart indicates checkout was started with an empty cart.
var ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")

// ErrDialogueStale indicates an action that does not belong to the current state, such as a
// button pressed on an old message.
var ErrDialogueStale = errors.New("dialogue: stale action")

// DialogueEventKind names an input to the dialogue state machine.
type DialogueEventKind string

const (
	EventStartCheckout DialogueEventKind = "start_checkout"
	EventText          DialogueEventKind = "text"
	EventConfirm       DialogueEventKind = "confirm"
	EventCancel        DialogueEventKind = "cancel"
	EventAddToCart     DialogueEventKind = "add_to_cart"
	EventConfirmAdd    DialogueEventKind = "confirm_add"
	EventCancelAdd     DialogueEventKind = "cancel_add"
)

// DialogueEvent is one inbound action. CartEmpty is read only for EventStartCheckout and
// AttemptID carries the new attempt id for start or the attempt bound to a confirm button.
type DialogueEvent struct {
	Kind      DialogueEventKind
	Text      string
	AttemptID string
	CartEmpty bool
}

// EffectKind tells the caller what to render or run after a transition.
type EffectKind string

const (
	EffectNone              EffectKind = "none"
	EffectAlertEmptyCart    EffectKind = "alert_empty_cart"
	EffectPromptName        EffectKind = "prompt_name"
	EffectRepromptName      EffectKind = "reprompt_name"
	EffectPromptPhone       EffectKind = "prompt_phone"
	EffectRepromptPhone     EffectKind = "reprompt_phone"
	EffectPromptAddress     EffectKind = "prompt_address"
	EffectRepromptAddress   EffectKind = "reprompt_address"
	EffectShowSummary       EffectKind = "show_summary"
	EffectPlaceOrder        EffectKind = "place_order"
	EffectReplayConfirm     EffectKind = "replay_confirm"
	EffectCheckoutCancelled EffectKind = "checkout_cancelled"
	EffectPromptQuantity    EffectKind = "prompt_quantity"
	EffectRepromptQuantity  EffectKind = "reprompt_quantity"
	EffectConfirmQuantity   EffectKind = "confirm_quantity"
	EffectAddToCart         EffectKind = "add_to_cart"
	EffectAddCancelled      EffectKind = "add_cancelled"
)

// Effect is the side effect requested by a transition. Only the fields relevant to Kind are set.
type Effect struct {
	Kind      EffectKind
	AttemptID string
	Recipient domain.Recipient
	ProductID string
	Quantity  int
}

// Transition computes the next dialogue state. It performs no I/O: placing the order, mutating
// the cart and rendering are left to the caller according to the returned effect. On a
// validation error the returned state equals the input state.
func Transition(state conversation.State, event DialogueEvent) (conversation.State, Effect, error) {
	if state == nil {
		state = conversation.Idle{}
	}
	switch event.Kind {
	case EventStartCheckout:
		if event.CartEmpty {
			return state, Effect{Kind: EffectAlertEmptyCart}, ErrCheckoutEmptyCart
		}
		if strings.TrimSpace(event.AttemptID) == "" {
			return state, Effect{Kind: EffectNone}, errors.New("checkout: attempt id is required")
		}
		return conversation.CollectingName{AttemptID: event.AttemptID},
			Effect{Kind: EffectPromptName, AttemptID: event.AttemptID}, nil

	case EventCancel:
		if !conversation.InCheckout(state) {
			return state, Effect{Kind: EffectNone}, ErrDialogueStale
		}
		return conversation.Idle{}, Effect{Kind: EffectCheckoutCancelled}, nil

	case EventConfirm:
		return transitionConfirm(state, event)

	case EventText:
		return transitionText(state, event.Text)

	case EventAddToCart:
		browsing, ok := conversation.BrowsingOf(state)
		if !ok || browsing.ProductID() == "" {
			return state, Effect{Kind: EffectNone}, ErrDialogueStale
		}
		return conversation.AwaitingQuantity{Browsing: browsing},
			Effect{Kind: EffectPromptQuantity, ProductID: browsing.ProductID()}, nil

	case EventConfirmAdd:
		pending, ok := state.(conversation.ConfirmingQuantity)
		if !ok || pending.Browsing.ProductID() == "" || pending.Quantity <= 0 {
			return conversation.Idle{}, Effect{Kind: EffectNone}, ErrDialogueStale
		}
		return conversation.Idle{}, Effect{
			Kind:      EffectAddToCart,
			ProductID: pending.Browsing.ProductID(),
			Quantity:  pending.Quantity,
		}, nil

	case EventCancelAdd:
		return conversation.Idle{}, Effect{Kind: EffectAddCancelled}, nil
	}
	return state, Effect{Kind: EffectNone}, ErrDialogueStale
}

func transitionConfirm(state conversation.State, event DialogueEvent) (conversation.State, Effect, error) {
	current, ok := state.(conversation.AwaitingConfirmation)
	if ok && (event.AttemptID == "" || event.AttemptID == current.AttemptID) {
		// The state stays put until the order outcome is known.
		return current, Effect{Kind: EffectPlaceOrder, AttemptID: current.AttemptID, Recipient: current.Recipient}, nil
	}
	if event.AttemptID != "" && !conversation.InCheckout(state) {
		// A repeated button press after completion. The caller replays the stored outcome.
		return state, Effect{Kind: EffectReplayConfirm, AttemptID: event.AttemptID}, nil
	}
	return state, Effect{Kind: EffectNone}, ErrDialogueStale
}

func transitionText(state conversation.State, text string) (conversation.State, Effect, error) {
	switch current := state.(type) {
	case conversation.CollectingName:
		name, err := ValidateName(text)
		if err != nil {
			return current, Effect{Kind: EffectRepromptName}, err
		}
		return conversation.CollectingPhone{AttemptID: current.AttemptID, Name: name},
			Effect{Kind: EffectPromptPhone, AttemptID: current.AttemptID}, nil

	case conversation.CollectingPhone:
		phone, err := ValidatePhone(text)
		if err != nil {
			return current, Effect{Kind: EffectRepromptPhone}, err
		}
		return conversation.CollectingAddress{AttemptID: current.AttemptID, Name: current.Name, Phone: phone},
			Effect{Kind: EffectPromptAddress, AttemptID: current.AttemptID}, nil

	case conversation.CollectingAddress:
		address, err := ValidateAddress(text)
		if err != nil {
			return current, Effect{Kind: EffectRepromptAddress}, err
		}
		recipient := domain.Recipient{FullName: current.Name, Phone: current.Phone, Address: address}
		return conversation.AwaitingConfirmation{AttemptID: current.AttemptID, Recipient: recipient},
			Effect{Kind: EffectShowSummary, AttemptID: current.AttemptID, Recipient: recipient}, nil

	case conversation.AwaitingQuantity:
		quantity, err := ParseQuantity(text)
		if err != nil {
			return current, Effect{Kind: EffectRepromptQuantity, ProductID: current.Browsing.ProductID()}, err
		}
		return conversation.ConfirmingQuantity{Browsing: current.Browsing, Quantity: quantity},
			Effect{Kind: EffectConfirmQuantity, ProductID: current.Browsing.ProductID(), Quantity: quantity}, nil
	}
	return state, Effect{Kind: EffectNone}, nil
}

// ValidateName accepts names of at least three characters.
func ValidateName(text string) (string, error) {
	name := textutil.PlainText(text)
	if textutil.RuneLen(name) < minNameLength {
		return "", ErrCheckoutInvalidInput
	}
	return name, nil
}

// ValidatePhone accepts an optional leading plus followed by digits, ten characters or longer
// including the plus.
func ValidatePhone(text string) (string, error) {
	phone := strings.TrimSpace(text)
	digits := strings.TrimPrefix(phone, "+")
	if digits == "" || len(phone) < minPhoneLength {
		return "", ErrCheckoutInvalidInput
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", ErrCheckoutInvalidInput
		}
	}
	return phone, nil
}

// ValidateAddress accepts addresses of at least ten characters.
func ValidateAddress(text string) (string, error) {
	address := textutil.PlainText(text)
	if textutil.RuneLen(address) < minAddressLength {
		return "", ErrCheckoutInvalidInput
	}
	return address, nil
}

// ParseQuantity accepts a positive decimal integer made of ASCII digits only.
func ParseQuantity(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrCartInvalidInput
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, ErrCartInvalidInput
		}
	}
	quantity, err := strconv.Atoi(text)
	if err != nil || quantity <= 0 {
		return 0, ErrCartInvalidInput
	}
	return quantity, nil
}
