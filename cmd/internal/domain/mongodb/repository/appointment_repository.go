package repository

import (
	"context"
	"errors"
	"time"

	"medibook/cmd/internal/domain/entity"
	"medibook/cmd/internal/domain/mongodb"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AppointmentRepository struct {
	appointments *mongo.Collection
	notes        *mongo.Collection
}

func NewAppointmentRepository(db *mongo.Database) *AppointmentRepository {
	return &AppointmentRepository{
		appointments: db.Collection(mongodb.AppointmentsCollection),
		notes:        db.Collection(mongodb.NotesCollection),
	}
}

func activeStatuses() bson.A {
	statuses := bson.A{}
	for _, s := range entity.ActiveStatuses {
		statuses = append(statuses, string(s))
	}
	return statuses
}

func (a *AppointmentRepository) Create(ctx context.Context, appt *entity.Appointment) error {
	stamp(&appt.CreatedAt, &appt.UpdatedAt)
	_, err := a.appointments.InsertOne(ctx, toAppointmentDocument(appt))
	if mongo.IsDuplicateKeyError(err) {
		return entity.ErrSlotTaken
	}
	return err
}

func (a *AppointmentRepository) FindByID(ctx context.Context, id string) (*entity.Appointment, error) {
	var doc appointmentDocument
	err := a.appointments.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	appts, err := a.resolve(ctx, []appointmentDocument{doc})
	if err != nil {
		return nil, err
	}
	return appts[0], nil
}

func (a *AppointmentRepository) FindAll(ctx context.Context) ([]*entity.Appointment, error) {
	return a.find(ctx, bson.M{})
}

func (a *AppointmentRepository) FindByEmail(ctx context.Context, email string) ([]*entity.Appointment, error) {
	return a.find(ctx, bson.M{"email": email})
}

func (a *AppointmentRepository) FindByStatus(ctx context.Context, status string) ([]*entity.Appointment, error) {
	return a.find(ctx, bson.M{"status": status})
}

func (a *AppointmentRepository) find(ctx context.Context, filter bson.M) ([]*entity.Appointment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := a.appointments.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var docs []appointmentDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return a.resolve(ctx, docs)
}

// resolve replaces each appointment's note references with the notes
// themselves, keeping the order of the reference list.
func (a *AppointmentRepository) resolve(ctx context.Context, docs []appointmentDocument) ([]*entity.Appointment, error) {
	var ids bson.A
	for _, d := range docs {
		for _, id := range d.NoteHistory {
			ids = append(ids, id)
		}
	}

	byID := make(map[string]entity.Note, len(ids))
	if len(ids) > 0 {
		cur, err := a.notes.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return nil, err
		}
		var notes []noteDocument
		if err := cur.All(ctx, &notes); err != nil {
			return nil, err
		}
		for i := range notes {
			byID[notes[i].ID] = notes[i].toEntity()
		}
	}

	out := make([]*entity.Appointment, len(docs))
	for i := range docs {
		history := make([]entity.Note, 0, len(docs[i].NoteHistory))
		for _, id := range docs[i].NoteHistory {
			if n, ok := byID[id]; ok {
				history = append(history, n)
			}
		}
		out[i] = docs[i].toEntity(history)
	}
	return out, nil
}

func (a *AppointmentRepository) IsSlotTaken(ctx context.Context, at int64, excludeID string) (bool, error) {
	filter := bson.M{
		"appointmentTime": at,
		"status":          bson.M{"$in": activeStatuses()},
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}

	count, err := a.appointments.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindActiveBetween returns PARTIAL appointment entities, having only the
// `AppointmentTime` field, for active appointments in [from, to).
func (a *AppointmentRepository) FindActiveBetween(ctx context.Context, from, to int64) ([]*entity.Appointment, error) {
	filter := bson.M{
		"status":          bson.M{"$in": activeStatuses()},
		"appointmentTime": bson.M{"$gte": from, "$lt": to},
	}
	opts := options.Find().
		SetProjection(bson.M{"appointmentTime": 1}).
		SetSort(bson.D{{Key: "appointmentTime", Value: 1}})

	cur, err := a.appointments.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var docs []appointmentDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]*entity.Appointment, len(docs))
	for i := range docs {
		out[i] = &entity.Appointment{ID: docs[i].ID, AppointmentTime: docs[i].AppointmentTime}
	}
	return out, nil
}

func (a *AppointmentRepository) UpdateStatus(ctx context.Context, appt *entity.Appointment, prior entity.Status) error {
	res, err := a.appointments.UpdateOne(ctx,
		bson.M{"_id": appt.ID, "status": string(prior)},
		bson.M{"$set": bson.M{
			"status":    string(appt.Status),
			"active":    appt.Status.IsActive(),
			"notes":     appt.Notes,
			"updatedAt": appt.UpdatedAt,
		}},
	)
	return checkUpdate(res, err)
}

func (a *AppointmentRepository) UpdateTime(ctx context.Context, appt *entity.Appointment) error {
	res, err := a.appointments.UpdateOne(ctx,
		bson.M{"_id": appt.ID, "status": string(appt.Status)},
		bson.M{"$set": bson.M{
			"appointmentTime": appt.AppointmentTime,
			"updatedAt":       appt.UpdatedAt,
		}},
	)
	return checkUpdate(res, err)
}

func checkUpdate(res *mongo.UpdateResult, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return entity.ErrSlotTaken
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return entity.ErrStaleWrite
	}
	return nil
}

// stamp fills zero timestamps the way gorm's autoCreateTime:milli does.
func stamp(fields ...*int64) {
	now := time.Now().UnixMilli()
	for _, f := range fields {
		if *f == 0 {
			*f = now
		}
	}
}
