package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hanko-field/storebot/internal/domain"
	pfirestore "github.com/hanko-field/storebot/internal/platform/firestore"
	"github.com/hanko-field/storebot/internal/repositories"
)

type orderDocument struct {
	UserID      int64               `firestore:"userId"`
	FullName    string              `firestore:"fullName"`
	Phone       string              `firestore:"phone"`
	Address     string              `firestore:"address"`
	Status      string              `firestore:"status"`
	Paid        bool                `firestore:"paid"`
	Amount      string              `firestore:"amount"`
	Currency    string              `firestore:"currency"`
	PaymentID   string              `firestore:"paymentId,omitempty"`
	PaymentURL  string              `firestore:"paymentUrl,omitempty"`
	FailureNote string              `firestore:"failureNote,omitempty"`
	Lines       []orderLineDocument `firestore:"lines"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
	PaidAt      *time.Time          `firestore:"paidAt,omitempty"`
}

type orderLineDocument struct {
	ProductID       string `firestore:"productId"`
	SubcategoryName string `firestore:"subcategoryName"`
	Description     string `firestore:"description"`
	Quantity        int    `firestore:"quantity"`
}

// OrderRepository stores each order as one document with embedded line snapshots.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// Create verifies the owner and products, stores the order and bumps the product reference counters
// in one transaction.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		ref, err := r.base.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}

		if _, err := tx.Get(client.Collection(usersCollection).Doc(userDocID(order.UserID))); err != nil {
			if status.Code(err) == codes.NotFound {
				return pfirestore.Conflict("orders.create", fmt.Errorf("user %d does not exist", order.UserID))
			}
			return err
		}

		productRefs := make([]*firestore.DocumentRef, 0, len(order.Lines))
		for _, line := range order.Lines {
			productRefs = append(productRefs, client.Collection(productsCollection).Doc(line.ProductID))
		}
		productSnaps, err := tx.GetAll(productRefs)
		if err != nil {
			return err
		}
		products := make([]productDocument, len(productSnaps))
		subRefs := make([]*firestore.DocumentRef, 0, len(productSnaps))
		for i, snapshot := range productSnaps {
			if !snapshot.Exists() {
				return pfirestore.Conflict("orders.create", fmt.Errorf("product %s does not exist", snapshot.Ref.ID))
			}
			if err := snapshot.DataTo(&products[i]); err != nil {
				return fmt.Errorf("firestore products decode %s: %w", snapshot.Ref.ID, err)
			}
			subRefs = append(subRefs, client.Collection(subcategoriesCollection).Doc(products[i].SubcategoryID))
		}
		subSnaps, err := tx.GetAll(subRefs)
		if err != nil {
			return err
		}

		doc := newOrderDocument(order)
		for i := range doc.Lines {
			doc.Lines[i].Description = products[i].Description
			if subSnaps[i].Exists() {
				var sub subcategoryDocument
				if err := subSnaps[i].DataTo(&sub); err != nil {
					return fmt.Errorf("firestore subcategories decode %s: %w", subSnaps[i].Ref.ID, err)
				}
				doc.Lines[i].SubcategoryName = sub.Name
			}
		}

		if err := tx.Create(ref, doc); err != nil {
			return err
		}
		increments := make(map[string]int)
		var referenced []*firestore.DocumentRef
		for _, productRef := range productRefs {
			if increments[productRef.ID] == 0 {
				referenced = append(referenced, productRef)
			}
			increments[productRef.ID]++
		}
		for _, productRef := range referenced {
			if err := tx.Update(productRef, []firestore.Update{{Path: "orderLines", Value: firestore.Increment(increments[productRef.ID])}}); err != nil {
				return err
			}
		}
		return nil
	})
	return pfirestore.WrapError("orders.create", err)
}

// UpdatePayment records the gateway outcome on the order.
func (r *OrderRepository) UpdatePayment(ctx context.Context, orderID string, update repositories.OrderPaymentUpdate) error {
	var paidAt any = firestore.Delete
	if update.PaidAt != nil {
		paidAt = update.PaidAt.UTC()
	}
	return r.base.Update(ctx, orderID, []firestore.Update{
		{Path: "status", Value: string(update.Status)},
		{Path: "paid", Value: update.Paid},
		{Path: "paymentId", Value: update.PaymentID},
		{Path: "paymentUrl", Value: update.PaymentURL},
		{Path: "failureNote", Value: update.FailureNote},
		{Path: "updatedAt", Value: update.UpdatedAt.UTC()},
		{Path: "paidAt", Value: paidAt},
	})
}

// Get loads one order.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	orders, err := r.withUsernames(ctx, []pfirestore.Document[orderDocument]{doc})
	if err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

// List returns every order, oldest first.
func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return r.withUsernames(ctx, docs)
}

func (r *OrderRepository) withUsernames(ctx context.Context, docs []pfirestore.Document[orderDocument]) ([]domain.Order, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(docs))
	seen := make(map[int64]struct{})
	for _, doc := range docs {
		if _, ok := seen[doc.Data.UserID]; ok {
			continue
		}
		seen[doc.Data.UserID] = struct{}{}
		refs = append(refs, client.Collection(usersCollection).Doc(userDocID(doc.Data.UserID)))
	}
	snapshots, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("orders.users", err)
	}
	usernames := make(map[int64]string, len(snapshots))
	for _, snapshot := range snapshots {
		if !snapshot.Exists() {
			continue
		}
		user, err := pfirestore.Decode[userDocument](snapshot)
		if err != nil {
			return nil, err
		}
		usernames[user.Data.TelegramID] = user.Data.Username
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := orderFromDocument(doc)
		if err != nil {
			return nil, err
		}
		order.Username = usernames[order.UserID]
		orders = append(orders, order)
	}
	return orders, nil
}

func newOrderDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineDocument{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	var paidAt *time.Time
	if order.PaidAt != nil {
		t := order.PaidAt.UTC()
		paidAt = &t
	}
	return orderDocument{
		UserID:      order.UserID,
		FullName:    order.Recipient.FullName,
		Phone:       order.Recipient.Phone,
		Address:     order.Recipient.Address,
		Status:      string(order.Status),
		Paid:        order.Paid,
		Amount:      order.Amount.Amount.StringFixed(2),
		Currency:    order.Amount.Currency,
		PaymentID:   order.PaymentID,
		PaymentURL:  order.PaymentURL,
		FailureNote: order.FailureNote,
		Lines:       lines,
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
		PaidAt:      paidAt,
	}
}

func orderFromDocument(doc pfirestore.Document[orderDocument]) (domain.Order, error) {
	amount, err := decimal.NewFromString(doc.Data.Amount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("firestore orders decode %s: amount %q: %w", doc.ID, doc.Data.Amount, err)
	}
	lines := make([]domain.OrderLine, 0, len(doc.Data.Lines))
	for _, line := range doc.Data.Lines {
		lines = append(lines, domain.OrderLine{
			OrderID:         doc.ID,
			ProductID:       line.ProductID,
			SubcategoryName: line.SubcategoryName,
			Description:     line.Description,
			Quantity:        line.Quantity,
		})
	}
	var paidAt *time.Time
	if doc.Data.PaidAt != nil {
		t := doc.Data.PaidAt.UTC()
		paidAt = &t
	}
	return domain.Order{
		ID:     doc.ID,
		UserID: doc.Data.UserID,
		Recipient: domain.Recipient{
			FullName: doc.Data.FullName,
			Phone:    doc.Data.Phone,
			Address:  doc.Data.Address,
		},
		Status:      domain.OrderStatus(doc.Data.Status),
		Paid:        doc.Data.Paid,
		Amount:      domain.Money{Amount: amount, Currency: doc.Data.Currency},
		PaymentID:   doc.Data.PaymentID,
		PaymentURL:  doc.Data.PaymentURL,
		FailureNote: doc.Data.FailureNote,
		Lines:       lines,
		CreatedAt:   doc.Data.CreatedAt.UTC(),
		UpdatedAt:   doc.Data.UpdatedAt.UTC(),
		PaidAt:      paidAt,
	}, nil
}
