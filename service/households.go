// Package service implements the household use cases on top of storage,
// classification, photos and the spreadsheet/PDF codecs.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"welfare-server-go/classify"
	"welfare-server-go/db"
	"welfare-server-go/excel"
	"welfare-server-go/models"
	"welfare-server-go/photos"
	"welfare-server-go/report"
)

type Households struct {
	store  db.Storage
	photos *photos.Store
	log    *zap.Logger
	now    func() time.Time
}

func NewHouseholds(store db.Storage, photoStore *photos.Store, log *zap.Logger) *Households {
	return &Households{store: store, photos: photoStore, log: log, now: time.Now}
}

// build validates in and derives the classification
func build(in models.HouseholdInput) (models.Household, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	if err := models.Validate(in); err != nil {
		return models.Household{}, err
	}
	return models.Household{
		Name:           in.Name,
		Address:        in.Address,
		Education:      in.Education,
		NumChildren:    in.NumChildren,
		MonthlyIncome:  in.MonthlyIncome,
		Occupation:     in.Occupation,
		Classification: classify.Classify(in),
	}, nil
}

func (s *Households) Create(ctx context.Context, in models.HouseholdInput) (models.Household, error) {
	h, err := build(in)
	if err != nil {
		return models.Household{}, err
	}
	h, err = s.store.CreateHousehold(ctx, h)
	if err != nil {
		return models.Household{}, err
	}
	s.log.Info("household created",
		zap.Int64("id", h.ID),
		zap.String("classification", string(h.Classification)))
	return h, nil
}

func (s *Households) Get(ctx context.Context, id int64) (models.Household, error) {
	return s.store.GetHousehold(ctx, id)
}

func (s *Households) List(ctx context.Context, f models.Filter) ([]models.Household, error) {
	return s.store.ListHouseholds(ctx, f)
}

func (s *Households) Summary(ctx context.Context, f models.Filter) (models.Summary, error) {
	return s.store.Summarize(ctx, f)
}

// Update replaces the fields of household id and recomputes its classification
func (s *Households) Update(ctx context.Context, id int64, in models.HouseholdInput) (models.Household, error) {
	h, err := build(in)
	if err != nil {
		return models.Household{}, err
	}
	h, err = s.store.UpdateHousehold(ctx, id, h)
	if err != nil {
		return models.Household{}, err
	}
	s.log.Info("household updated",
		zap.Int64("id", id),
		zap.String("classification", string(h.Classification)))
	return h, nil
}

// Delete removes household id and its photo
func (s *Households) Delete(ctx context.Context, id int64) error {
	h, err := s.store.DeleteHousehold(ctx, id)
	if err != nil {
		return err
	}
	s.removePhoto(h)
	s.log.Info("household deleted", zap.Int64("id", id))
	return nil
}

// DeleteByName removes every household called name and returns how many
// were removed
func (s *Households) DeleteByName(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("name is required")
	}
	removed, err := s.store.DeleteHouseholdsByName(ctx, name)
	if err != nil {
		return 0, err
	}
	for _, h := range removed {
		s.removePhoto(h)
	}
	s.log.Info("households deleted by name", zap.String("name", name), zap.Int("count", len(removed)))
	return len(removed), nil
}

// AttachPhoto stores the image in r as the photo of household id,
// replacing any earlier one
func (s *Households) AttachPhoto(ctx context.Context, id int64, r io.Reader) (models.Household, error) {
	h, err := s.store.GetHousehold(ctx, id)
	if err != nil {
		return models.Household{}, err
	}

	name, err := s.photos.Save(r)
	if err != nil {
		return models.Household{}, err
	}
	if err := s.store.SetHouseholdImage(ctx, id, name); err != nil {
		if rmErr := s.photos.Remove(name); rmErr != nil {
			s.log.Warn("removing orphaned photo failed", zap.String("photo", name), zap.Error(rmErr))
		}
		return models.Household{}, err
	}

	s.removePhoto(h)
	h.ImagePath = name
	s.log.Info("photo attached", zap.Int64("id", id), zap.String("photo", name))
	return h, nil
}

// Photo opens the photo of household id
func (s *Households) Photo(ctx context.Context, id int64) (io.ReadSeekCloser, string, error) {
	h, err := s.store.GetHousehold(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if h.ImagePath == "" {
		return nil, "", fmt.Errorf("photo of household %d: %w", id, db.ErrNotFound)
	}
	if !s.photos.Exists(h.ImagePath) {
		s.log.Warn("photo file missing", zap.Int64("id", id), zap.String("photo", h.ImagePath))
		return nil, "", fmt.Errorf("photo file of household %d: %w", id, db.ErrNotFound)
	}
	f, mtype, err := s.photos.Open(h.ImagePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("photo file of household %d: %w", id, db.ErrNotFound)
	}
	return f, mtype, err
}

// Preview classifies in without storing anything
func (s *Households) Preview(in models.HouseholdInput) (classify.Result, error) {
	if err := models.Validate(in); err != nil {
		return classify.Result{}, err
	}
	return classify.Explain(in), nil
}

// Import inserts every valid row of the workbook in r. Invalid rows and
// rows that fail to insert are reported, not fatal.
func (s *Households) Import(ctx context.Context, r io.Reader) (excel.ImportResult, error) {
	rows, failed, err := excel.Parse(r)
	if err != nil {
		return excel.ImportResult{}, err
	}

	res := excel.ImportResult{Failed: failed}
	for _, row := range rows {
		if _, err := s.Create(ctx, row.Input); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			s.log.Warn("import row failed", zap.Int("row", row.Number), zap.Error(err))
			res.Failed = append(res.Failed, excel.RowError{Row: row.Number, Reason: models.ValidationMessage(err)})
			continue
		}
		res.Inserted++
	}
	if res.Failed == nil {
		res.Failed = []excel.RowError{}
	}

	s.log.Info("import finished", zap.Int("inserted", res.Inserted), zap.Int("failed", len(res.Failed)))
	return res, nil
}

// ExportExcel writes every household as an xlsx workbook
func (s *Households) ExportExcel(ctx context.Context, w io.Writer, note string) error {
	all, err := s.store.ListHouseholds(ctx, models.Filter{})
	if err != nil {
		return err
	}
	return excel.Export(w, all, note, s.now())
}

// ExportPDF writes every household as a PDF report
func (s *Households) ExportPDF(ctx context.Context, w io.Writer, note string) error {
	all, err := s.store.ListHouseholds(ctx, models.Filter{})
	if err != nil {
		return err
	}
	pages, err := report.Write(w, all, note, s.now())
	if err != nil {
		return err
	}
	s.log.Debug("pdf report rendered", zap.Int("rows", len(all)), zap.Int("pages", pages))
	return nil
}

// ExportFileName is the download name for an export made at t
func ExportFileName(t time.Time, ext string) string {
	return fmt.Sprintf("laporan_kemiskinan_%s.%s", t.Format("2006-01-02"), ext)
}

// SeedDemo inserts a few sample households when the table is empty
func (s *Households) SeedDemo(ctx context.Context) (int, error) {
	n, err := s.store.CountHouseholds(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("households present, skipping demo data", zap.Int("count", n))
		return 0, nil
	}

	demo := []models.HouseholdInput{
		{Name: "Siti Aminah", Address: "Dusun Krajan RT 02", Education: "SD", NumChildren: 4, MonthlyIncome: 1_200_000, Occupation: "Buruh / Tani / Pekerja kasar"},
		{Name: "Budi Santoso", Address: "Jl. Merdeka 12", Education: "SMA/SMK", NumChildren: 2, MonthlyIncome: 3_500_000, Occupation: "Wiraswasta kecil"},
		{Name: "Dewi Lestari", Address: "Perum Griya Asri B7", Education: "S1 ke atas", NumChildren: 1, MonthlyIncome: 9_000_000, Occupation: "PNS / Profesional"},
	}
	seeded := 0
	for _, in := range demo {
		if _, err := s.Create(ctx, in); err != nil {
			s.log.Warn("seeding demo household failed", zap.String("name", in.Name), zap.Error(err))
			continue
		}
		seeded++
	}
	return seeded, nil
}

func (s *Households) removePhoto(h models.Household) {
	if h.ImagePath == "" {
		return
	}
	if err := s.photos.Remove(h.ImagePath); err != nil {
		s.log.Warn("removing photo failed", zap.Int64("id", h.ID), zap.String("photo", h.ImagePath), zap.Error(err))
	}
}
