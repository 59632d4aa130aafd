package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clinicdesk/clinic/internal/domain/billing"
	"github.com/clinicdesk/clinic/internal/platform/docstore"
)

const appointmentsCollection = "appointments"

type appointmentDoc struct {
	ID          string     `bson:"_id"`
	DoctorID    string     `bson:"doctor_id"`
	PatientID   string     `bson:"patient_id"`
	Reason      string     `bson:"reason,omitempty"`
	ScheduledAt *time.Time `bson:"scheduled_at,omitempty"`
	Visits      []visitDoc `bson:"visits"`
	Version     int        `bson:"version"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

type serviceDoc struct {
	ServiceID  *string              `bson:"service_id,omitempty"`
	Name       string               `bson:"name"`
	UnitAmount primitive.Decimal128 `bson:"unit_amount"`
}

type visitDoc struct {
	ID              string               `bson:"id"`
	InvoiceNumber   int64                `bson:"invoice_number"`
	VisitDate       time.Time            `bson:"visit_date"`
	Services        []serviceDoc         `bson:"services"`
	DiscountRaw     primitive.Decimal128 `bson:"discount_raw"`
	DiscountPercent bool                 `bson:"discount_is_percent"`
	ServiceTotal    int64                `bson:"service_total"`
	DiscountValue   int64                `bson:"discount_value"`
	FinalAmount     int64                `bson:"final_amount"`
	CollectedAmount int64                `bson:"collected_amount"`
	RemainingAmount int64                `bson:"remaining_amount"`
	Status          string               `bson:"status"`
	PaymentType     string               `bson:"payment_type,omitempty"`
	Notes           string               `bson:"notes,omitempty"`
	CreatedAt       time.Time            `bson:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at"`
}

func toDecimal128(a billing.Amount) primitive.Decimal128 {
	d, err := primitive.ParseDecimal128(a.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return d
}

func fromDecimal128(d primitive.Decimal128) billing.Amount {
	return billing.ParseAmount(d.String())
}

func toVisitDocs(visits []Visit) []visitDoc {
	docs := make([]visitDoc, len(visits))
	for i, v := range visits {
		services := make([]serviceDoc, len(v.Services))
		for j, s := range v.Services {
			services[j] = serviceDoc{ServiceID: s.ServiceID, Name: s.Name, UnitAmount: toDecimal128(s.UnitAmount)}
		}
		docs[i] = visitDoc{
			ID:              v.ID.String(),
			InvoiceNumber:   v.InvoiceNumber,
			VisitDate:       v.VisitDate,
			Services:        services,
			DiscountRaw:     toDecimal128(v.Discount.Raw),
			DiscountPercent: v.Discount.IsPercent,
			ServiceTotal:    v.ServiceTotal,
			DiscountValue:   v.DiscountValue,
			FinalAmount:     v.FinalAmount,
			CollectedAmount: v.CollectedAmount,
			RemainingAmount: v.RemainingAmount,
			Status:          string(v.Status),
			PaymentType:     string(v.PaymentType),
			Notes:           v.Notes,
			CreatedAt:       v.CreatedAt,
			UpdatedAt:       v.UpdatedAt,
		}
	}
	return docs
}

func (d visitDoc) toVisit() (Visit, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return Visit{}, fmt.Errorf("visit id %q: %w", d.ID, err)
	}
	services := make(billing.ServiceList, len(d.Services))
	for i, s := range d.Services {
		services[i] = billing.ServiceLine{ServiceID: s.ServiceID, Name: s.Name, UnitAmount: fromDecimal128(s.UnitAmount)}
	}
	return Visit{
		ID:              id,
		InvoiceNumber:   d.InvoiceNumber,
		VisitDate:       d.VisitDate.UTC(),
		Services:        services,
		Discount:        billing.DiscountSpec{Raw: fromDecimal128(d.DiscountRaw), IsPercent: d.DiscountPercent},
		ServiceTotal:    d.ServiceTotal,
		DiscountValue:   d.DiscountValue,
		FinalAmount:     d.FinalAmount,
		CollectedAmount: d.CollectedAmount,
		RemainingAmount: d.RemainingAmount,
		Status:          billing.Status(d.Status),
		PaymentType:     billing.PaymentType(d.PaymentType),
		Notes:           d.Notes,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}, nil
}

func (d appointmentDoc) toAppointment() (*Appointment, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("appointment id %q: %w", d.ID, err)
	}
	a := &Appointment{
		ID:          id,
		DoctorID:    d.DoctorID,
		PatientID:   d.PatientID,
		Reason:      d.Reason,
		ScheduledAt: d.ScheduledAt,
		Visits:      make([]Visit, 0, len(d.Visits)),
		Version:     d.Version,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	for _, vd := range d.Visits {
		v, err := vd.toVisit()
		if err != nil {
			return nil, err
		}
		a.Visits = append(a.Visits, v)
	}
	return a, nil
}

type appointmentRepoMongo struct{ store *docstore.Store }

func NewAppointmentRepoMongo(store *docstore.Store) AppointmentRepository {
	return &appointmentRepoMongo{store: store}
}

func (r *appointmentRepoMongo) coll(ctx context.Context) (*mongo.Collection, error) {
	return r.store.Collection(ctx, appointmentsCollection)
}

// EnsureAppointmentIndexes creates the indexes the listing and report
// queries rely on in the tenant database stored in ctx.
func EnsureAppointmentIndexes(ctx context.Context, store *docstore.Store) error {
	coll, err := store.Collection(ctx, appointmentsCollection)
	if err != nil {
		return err
	}
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "patient_id", Value: 1}}},
	})
	return err
}

func (r *appointmentRepoMongo) Create(ctx context.Context, a *Appointment) error {
	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	a.ID = uuid.New()
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err = coll.InsertOne(ctx, appointmentDoc{
		ID:          a.ID.String(),
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		Reason:      a.Reason,
		ScheduledAt: a.ScheduledAt,
		Visits:      toVisitDocs(a.Visits),
		Version:     a.Version,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return err
}

func (r *appointmentRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	var doc appointmentDoc
	err = coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toAppointment()
}

func (r *appointmentRepoMongo) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, 0, err
	}
	q := bson.M{}
	if filter.DoctorID != "" {
		q["doctor_id"] = filter.DoctorID
	}
	if filter.PatientID != "" {
		q["patient_id"] = filter.PatientID
	}

	total, err := coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := coll.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var items []*Appointment
	for cur.Next(ctx) {
		var doc appointmentDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		a, err := doc.toAppointment()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, int(total), cur.Err()
}

func (r *appointmentRepoMongo) SaveVisits(ctx context.Context, id uuid.UUID, expectedVersion int, visits []Visit) (*Appointment, error) {
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	update := bson.M{
		"$set": bson.M{"visits": toVisitDocs(visits), "updated_at": time.Now().UTC()},
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc appointmentDoc
	err = coll.FindOneAndUpdate(ctx, bson.M{"_id": id.String(), "version": expectedVersion}, update, opts).Decode(&doc)
	if err == nil {
		return doc.toAppointment()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	n, err := coll.CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrVersionConflict
	}
	return nil, ErrNotFound
}

func (r *appointmentRepoMongo) DoctorVisits(ctx context.Context, doctorID string) ([]Visit, error) {
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, bson.M{"doctor_id": doctorID}, options.Find().SetProjection(bson.M{"visits": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var all []Visit
	for cur.Next(ctx) {
		var doc struct {
			Visits []visitDoc `bson:"visits"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		for _, vd := range doc.Visits {
			v, err := vd.toVisit()
			if err != nil {
				return nil, err
			}
			all = append(all, v)
		}
	}
	return all, cur.Err()
}

func (r *appointmentRepoMongo) MaxInvoiceNumbers(ctx context.Context) (map[string]int64, error) {
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$unwind", Value: "$visits"}},
		{{Key: "$group", Value: bson.M{
			"_id": "$doctor_id",
			"max": bson.M{"$max": "$visits.invoice_number"},
		}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			DoctorID string `bson:"_id"`
			Max      int64  `bson:"max"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.DoctorID] = row.Max
	}
	return out, cur.Err()
}
