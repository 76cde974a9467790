package services

import (
	"context"
	"errors"
	"testing"

	"bulk-upload-service/internal/models"
	"bulk-upload-service/internal/repository"
	"bulk-upload-service/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testSeller = "seller-1"
	testShop   = "shop-1"
)

// MockMatcher is a mock implementation of Matcher
type MockMatcher struct {
	mock.Mock
}

func (m *MockMatcher) Match(ctx context.Context, q MatchQuery) (*MatchResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MatchResult), args.Error(1)
}

var _ Matcher = (*MockMatcher)(nil)

type stagingFixture struct {
	db      *gorm.DB
	repo    *repository.BulkUploadRepository
	service *StagingService
}

func newStagingFixture(t *testing.T, matcher Matcher, limits StagingLimits) *stagingFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	repo := repository.NewBulkUploadRepository(db)
	if matcher == nil {
		matcher = NewProductMatcher(repo, 0.75, quietLogger())
	}
	specs := NewSpecValidator(NewSpecRuleBook(nil, 0, quietLogger()), quietLogger())
	return &stagingFixture{
		db:      db,
		repo:    repo,
		service: NewStagingService(repo, matcher, specs, limits, quietLogger()),
	}
}

func (f *stagingFixture) stage(t *testing.T, rows ...models.RawRow) *models.UploadBatch {
	t.Helper()
	batch, err := f.service.StageBatch(context.Background(), StageInput{
		SellerID: testSeller,
		ShopID:   testShop,
		FileName: "products.xlsx",
		Rows:     rows,
	})
	require.NoError(t, err)
	return batch
}

func (f *stagingFixture) rows(t *testing.T, batchID uuid.UUID) []models.StagingRow {
	t.Helper()
	rows, err := f.repo.ListRowsByStatus(context.Background(), batchID)
	require.NoError(t, err)
	return rows
}

func (f *stagingFixture) seedListing(t *testing.T, name, sku string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Listing{
		BaseProductID:  uuid.New(),
		SellerID:       testSeller,
		ShopID:         testShop,
		SKU:            sku,
		ProductName:    name,
		NormalizedName: NormalizeProductName(name),
		BasePrice:      decimal.NewFromInt(95000),
		DisplayPrice:   DisplayPrice(decimal.NewFromInt(95000)),
		StockQuantity:  3,
		Condition:      models.ConditionNew,
		Status:         models.ListingStatusLive,
	}).Error)
}

func (f *stagingFixture) seedProduct(t *testing.T, name string, status models.ApprovalStatus) *models.BaseProduct {
	t.Helper()
	product := &models.BaseProduct{
		Name:           name,
		NormalizedName: NormalizeProductName(name),
		ApprovalStatus: status,
	}
	require.NoError(t, f.db.Create(product).Error)
	return product
}

func s24Row() models.RawRow {
	return models.RawRow{
		models.ColumnProductName:   "Samsung Galaxy S24 Ultra",
		models.ColumnCategory:      "Smartphones & Tablets",
		models.ColumnBrand:         "Samsung",
		models.ColumnBasePrice:     "MWK 1,350,000",
		models.ColumnStockQuantity: "5",
		models.ColumnCondition:     "New",
		"Spec: Screen Size":        "6.8 inches",
		"Spec: Color":              "Titanium Black",
	}
}

func chitenjeRow() models.RawRow {
	return models.RawRow{
		models.ColumnProductName:   "Cotton Chitenje",
		models.ColumnCategory:      "Fashion",
		models.ColumnSKU:           "CHT-001",
		models.ColumnBasePrice:     "8500",
		models.ColumnStockQuantity: "12",
		"Label_1":                  "Material",
		"Value_1":                  "Cotton",
	}
}

// mixedUpload has one row of every outcome: needs specs, invalid, in-file duplicate,
// needs images and shop duplicate
func mixedUpload() []models.RawRow {
	return []models.RawRow{
		s24Row(),
		{
			models.ColumnProductName:   "Itel Power Bank 10000mAh",
			models.ColumnStockQuantity: "3",
		},
		{
			models.ColumnProductName:   "samsung galaxy S24-Ultra",
			models.ColumnCategory:      "Smartphones & Tablets",
			models.ColumnBasePrice:     "1300000",
			models.ColumnStockQuantity: "1",
		},
		chitenjeRow(),
		{
			models.ColumnProductName:   "Tecno Spark 20",
			models.ColumnCategory:      "Mobile Phones",
			models.ColumnBasePrice:     "95000",
			models.ColumnStockQuantity: "3",
		},
	}
}

func TestStagingService_StageBatch(t *testing.T) {
	f := newStagingFixture(t, nil, StagingLimits{})
	f.seedListing(t, "Tecno Spark 20", "TS20-BLK")

	batch := f.stage(t, mixedUpload()...)

	assert.Equal(t, models.BatchStatusStaging, batch.Status)
	assert.Equal(t, models.TemplateAuto, batch.TemplateType)
	assert.Equal(t, testShop, batch.ShopID)
	assert.Equal(t, 5, batch.TotalRows)
	assert.Equal(t, 2, batch.ValidRows)
	assert.Equal(t, 1, batch.InvalidRows)
	assert.Equal(t, 2, batch.SkippedRows)
	assert.Equal(t, 1, batch.NeedsSpecsRows)
	assert.Equal(t, 1, batch.NeedsImagesRows)
	assert.Equal(t, 2, batch.NewProductRows)

	rows := f.rows(t, batch.ID)
	require.Len(t, rows, 5)

	s24 := rows[0]
	assert.Equal(t, models.RowStatusValid, s24.Status)
	assert.Equal(t, models.TemplateElectronics, s24.TemplateType)
	assert.Equal(t, models.ListingStatusNeedsSpecs, s24.TargetListingStatus)
	assert.Equal(t, "1421010", s24.DisplayPrice.String())
	assert.Equal(t, []string{AttrRAM, AttrStorage}, s24.MissingSpecs.Data())
	assert.Equal(t, `6.8"`, s24.Attributes.Data()[AttrScreenSize])
	assert.True(t, s24.WillCreateProduct)
	assert.Nil(t, s24.MatchedProductID)
	assert.Equal(t, string(MatchTypeNone), s24.MatchType)
	require.Len(t, s24.RowErrors(), 2)
	assert.Equal(t, models.RowErrorMissingSpec, s24.RowErrors()[0].Code)
	assert.False(t, s24.HasHardErrors())

	invalid := rows[1]
	assert.Equal(t, models.RowStatusInvalid, invalid.Status)
	require.Len(t, invalid.RowErrors(), 1)
	assert.Equal(t, "price", invalid.RowErrors()[0].Field)

	inFile := rows[2]
	assert.Equal(t, models.RowStatusSkipped, inFile.Status)
	require.Len(t, inFile.RowErrors(), 1)
	assert.Equal(t, models.RowErrorDuplicateInBatch, inFile.RowErrors()[0].Code)
	assert.Equal(t, 1, inFile.RowErrors()[0].RefRowNumber)

	chitenje := rows[3]
	assert.Equal(t, models.RowStatusValid, chitenje.Status)
	assert.Equal(t, models.TemplateGeneral, chitenje.TemplateType)
	assert.Equal(t, models.ListingStatusNeedsImages, chitenje.TargetListingStatus)
	assert.Equal(t, map[string]string{"material": "Cotton"}, chitenje.Attributes.Data())

	inShop := rows[4]
	assert.Equal(t, models.RowStatusSkipped, inShop.Status)
	require.Len(t, inShop.RowErrors(), 1)
	assert.Equal(t, models.RowErrorDuplicateInShop, inShop.RowErrors()[0].Code)
	assert.Equal(t, models.ErrorKindDuplicate, inShop.RowErrors()[0].Kind)
}

func TestStagingService_StageBatch_MatchesCatalogProduct(t *testing.T) {
	f := newStagingFixture(t, nil, StagingLimits{})
	product := f.seedProduct(t, "Samsung Galaxy A15", models.ApprovalStatusApproved)

	batch := f.stage(t, models.RawRow{
		models.ColumnProductName:   "Samsung Galaxy A15",
		models.ColumnCategory:      "Phones",
		models.ColumnBasePrice:     "150000",
		models.ColumnStockQuantity: "10",
		"Spec: RAM":                "4 GB",
		"Spec: Storage":            "128",
		"Spec: Screen Size":        "6.5",
	})

	assert.Equal(t, 1, batch.ValidRows)
	assert.Equal(t, 0, batch.NewProductRows)
	assert.Equal(t, 1, batch.NeedsImagesRows)
	assert.Equal(t, models.TemplateElectronics, batch.TemplateType)

	row := f.rows(t, batch.ID)[0]
	require.NotNil(t, row.MatchedProductID)
	assert.Equal(t, product.ID, *row.MatchedProductID)
	assert.Equal(t, 100, row.MatchConfidence)
	assert.Equal(t, string(MatchTypeExact), row.MatchType)
	assert.False(t, row.WillCreateProduct)
	assert.Equal(t, models.ListingStatusNeedsImages, row.TargetListingStatus)
	assert.Empty(t, row.RowErrors())
}

func TestStagingService_DuplicatesSkipMatching(t *testing.T) {
	matcher := new(MockMatcher)
	f := newStagingFixture(t, matcher, StagingLimits{})

	matcher.On("Match", mock.Anything, mock.MatchedBy(func(q MatchQuery) bool { return q.Name == "Infinix Hot 40" })).
		Return(noMatch("no catalog candidates"), nil)

	batch := f.stage(t,
		models.RawRow{models.ColumnProductName: "Infinix Hot 40", models.ColumnSKU: "HOT40", models.ColumnBasePrice: "210000", models.ColumnStockQuantity: "2"},
		models.RawRow{models.ColumnProductName: "INFINIX HOT 40", models.ColumnBasePrice: "205000", models.ColumnStockQuantity: "1"},
		models.RawRow{models.ColumnProductName: "Infinix Hot 40i", models.ColumnSKU: "hot40", models.ColumnBasePrice: "180000", models.ColumnStockQuantity: "4"},
	)

	assert.Equal(t, 1, batch.ValidRows)
	assert.Equal(t, 2, batch.SkippedRows)
	matcher.AssertNumberOfCalls(t, "Match", 1)

	rows := f.rows(t, batch.ID)
	assert.Equal(t, "name", rows[1].RowErrors()[0].Field)
	assert.Equal(t, "sku", rows[2].RowErrors()[0].Field)
	assert.Equal(t, 1, rows[2].RowErrors()[0].RefRowNumber)
}

func TestStagingService_ShopSKUDuplicate(t *testing.T) {
	f := newStagingFixture(t, nil, StagingLimits{})
	f.seedListing(t, "Old Chitenje", "CHT-001")

	batch := f.stage(t, chitenjeRow())

	row := f.rows(t, batch.ID)[0]
	assert.Equal(t, models.RowStatusSkipped, row.Status)
	assert.Equal(t, models.RowErrorDuplicateSKU, row.RowErrors()[0].Code)
}

func TestStagingService_ValidationErrorLeavesRowsPending(t *testing.T) {
	matcher := new(MockMatcher)
	f := newStagingFixture(t, matcher, StagingLimits{})
	ctx := context.Background()

	isRow := func(name string) interface{} {
		return mock.MatchedBy(func(q MatchQuery) bool { return q.Name == name })
	}
	matcher.On("Match", mock.Anything, isRow("Hisense Fridge")).Return(noMatch("no catalog candidates"), nil)
	matcher.On("Match", mock.Anything, isRow("Nasco Kettle")).Return(nil, errors.New("connection reset")).Once()
	matcher.On("Match", mock.Anything, isRow("Nasco Kettle")).Return(noMatch("no catalog candidates"), nil)

	_, err := f.service.StageBatch(ctx, StageInput{
		SellerID: testSeller,
		ShopID:   testShop,
		Rows: []models.RawRow{
			{models.ColumnProductName: "Hisense Fridge", models.ColumnBasePrice: "650000", models.ColumnStockQuantity: "1"},
			{models.ColumnProductName: "Nasco Kettle", models.ColumnBasePrice: "25000", models.ColumnStockQuantity: "6"},
			{models.ColumnProductName: "Hisense  fridge", models.ColumnBasePrice: "640000", models.ColumnStockQuantity: "2"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")

	var batch models.UploadBatch
	require.NoError(t, f.db.First(&batch).Error)
	rows := f.rows(t, batch.ID)
	assert.Equal(t, models.RowStatusValid, rows[0].Status)
	assert.Equal(t, models.RowStatusPending, rows[1].Status)
	assert.Equal(t, models.RowStatusPending, rows[2].Status)

	resumed, err := f.service.ValidateBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, resumed.ValidRows)
	assert.Equal(t, 1, resumed.SkippedRows)

	rows = f.rows(t, batch.ID)
	assert.Equal(t, models.RowStatusValid, rows[1].Status)
	assert.Equal(t, models.RowStatusSkipped, rows[2].Status)
	assert.Equal(t, 1, rows[2].RowErrors()[0].RefRowNumber)
	matcher.AssertNumberOfCalls(t, "Match", 3)
}

func TestStagingService_Limits(t *testing.T) {
	ctx := context.Background()

	t.Run("empty upload", func(t *testing.T) {
		f := newStagingFixture(t, nil, StagingLimits{})
		_, err := f.service.StageBatch(ctx, StageInput{SellerID: testSeller})
		assert.ErrorIs(t, err, ErrEmptyUpload)
	})

	t.Run("too many rows", func(t *testing.T) {
		f := newStagingFixture(t, nil, StagingLimits{MaxRowsPerUpload: 1})
		_, err := f.service.StageBatch(ctx, StageInput{SellerID: testSeller, Rows: []models.RawRow{s24Row(), chitenjeRow()}})
		assert.ErrorIs(t, err, ErrTooManyRows)
	})

	t.Run("staging batches per seller", func(t *testing.T) {
		f := newStagingFixture(t, nil, StagingLimits{MaxStagingBatches: 1})
		f.stage(t, chitenjeRow())

		_, err := f.service.StageBatch(ctx, StageInput{SellerID: testSeller, ShopID: testShop, Rows: []models.RawRow{s24Row()}})
		assert.ErrorIs(t, err, ErrStagingLimitReached)

		other, err := f.service.StageBatch(ctx, StageInput{SellerID: "seller-2", Rows: []models.RawRow{s24Row()}})
		require.NoError(t, err)
		assert.Equal(t, "seller-2", other.ShopID, "shop defaults to the seller")
	})
}

func TestStagingService_Preview(t *testing.T) {
	f := newStagingFixture(t, nil, StagingLimits{})
	f.seedListing(t, "Tecno Spark 20", "TS20-BLK")
	batch := f.stage(t, mixedUpload()...)
	ctx := context.Background()

	valid, err := f.service.Preview(ctx, testSeller, batch.ID, PreviewValid, 1, 20)
	require.NoError(t, err)
	require.Len(t, valid.Rows, 2)
	assert.Equal(t, 1, valid.Rows[0].RowNumber)
	assert.Equal(t, 4, valid.Rows[1].RowNumber)

	invalid, err := f.service.Preview(ctx, testSeller, batch.ID, PreviewInvalid, 1, 20)
	require.NoError(t, err)
	assert.Len(t, invalid.Rows, 3)
	assert.Equal(t, int64(3), invalid.Pagination.Total)

	page, err := f.service.Preview(ctx, testSeller, batch.ID, PreviewAll, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, 3, page.Rows[0].RowNumber)
	assert.Equal(t, int64(5), page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasNext)
	assert.True(t, page.Pagination.HasPrevious)
	assert.Equal(t, batch.ID, page.Batch.ID)

	_, err = f.service.Preview(ctx, "seller-2", batch.ID, PreviewAll, 1, 20)
	assert.ErrorIs(t, err, ErrBatchNotFound)

	_, err = f.service.Preview(ctx, testSeller, uuid.New(), PreviewAll, 1, 20)
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestStagingService_KeepsSpreadsheetLines(t *testing.T) {
	f := newStagingFixture(t, nil, StagingLimits{})
	batch := f.stage(t,
		models.RawRow{models.ColumnSourceRow: 2, models.ColumnProductName: "Wooden Stool", models.ColumnBasePrice: "18000", models.ColumnStockQuantity: "3"},
		models.RawRow{models.ColumnSourceRow: 5, models.ColumnProductName: "Clay Pot", models.ColumnBasePrice: "6000", models.ColumnStockQuantity: "9"},
		models.RawRow{models.ColumnSourceRow: 7, models.ColumnProductName: "wooden stool", models.ColumnBasePrice: "17500", models.ColumnStockQuantity: "1"},
		models.RawRow{models.ColumnProductName: "Reed Mat", models.ColumnBasePrice: "4000", models.ColumnStockQuantity: "2"},
	)
	assert.Equal(t, 3, batch.ValidRows)
	assert.Equal(t, 1, batch.SkippedRows)

	rows := f.rows(t, batch.ID)
	require.Len(t, rows, 4)
	numbers := make([]int, len(rows))
	for i, row := range rows {
		numbers[i] = row.RowNumber
		assert.NotContains(t, row.RawData, models.ColumnSourceRow)
	}
	assert.Equal(t, []int{2, 5, 7, 8}, numbers)

	report, err := f.service.CorrectionReport(context.Background(), testSeller, batch.ID)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, 7, report.Rows[0].RowNumber)
	assert.Equal(t, "Same product as row 2 in this file", report.Rows[0].Reason)
}

func TestStagingService_CorrectionReport(t *testing.T) {
	f := newStagingFixture(t, nil, StagingLimits{})
	f.seedListing(t, "Tecno Spark 20", "TS20-BLK")
	batch := f.stage(t, mixedUpload()...)

	report, err := f.service.CorrectionReport(context.Background(), testSeller, batch.ID)
	require.NoError(t, err)

	assert.Equal(t, models.CoreColumns, report.Columns)
	require.Len(t, report.Rows, 3)

	missingPrice := report.Rows[0]
	assert.Equal(t, 2, missingPrice.RowNumber)
	assert.Equal(t, []ReasonCode{ReasonMissingPrice}, missingPrice.ReasonCodes)
	assert.Equal(t, "Base price is missing", missingPrice.Reason)
	assert.Equal(t, "Mtengo wa katundu ukusowa", missingPrice.ReasonSecondary)
	assert.Equal(t, "Itel Power Bank 10000mAh", missingPrice.Values[models.ColumnProductName])

	inFile := report.Rows[1]
	assert.Equal(t, []ReasonCode{ReasonDuplicateInFile}, inFile.ReasonCodes)
	assert.Equal(t, "Same product as row 1 in this file", inFile.Reason)
	assert.Equal(t, "Katundu yemweyu ali pa mzere 1 mu fayilo iyi", inFile.ReasonSecondary)

	assert.Equal(t, []ReasonCode{ReasonDuplicateProduct}, report.Rows[2].ReasonCodes)

	table := report.Table()
	require.Len(t, table, 4)
	header := table[0]
	assert.Equal(t, ColumnRowNumber, header[0])
	assert.Equal(t, ColumnReason, header[len(header)-2])
	assert.Equal(t, ColumnReasonSecondary, header[len(header)-1])
	assert.Equal(t, "2", table[1][0])
	assert.Equal(t, "Base price is missing", table[1][len(header)-2])
}

func TestReasonCodeFor(t *testing.T) {
	tests := []struct {
		name     string
		err      models.RowError
		expected ReasonCode
	}{
		{"missing name", models.RowError{Field: "name", Code: models.RowErrorRequired}, ReasonMissingName},
		{"invalid price", models.RowError{Field: "price", Code: models.RowErrorInvalid}, ReasonInvalidPrice},
		{"invalid stock", models.RowError{Field: "stock", Code: models.RowErrorInvalid}, ReasonInvalidStock},
		{"legacy message", models.RowError{Field: "stock", Message: "Stock quantity is required"}, ReasonMissingStock},
		{"shop SKU", models.RowError{Field: "sku", Code: models.RowErrorDuplicateSKU}, ReasonDuplicateSKU},
		{"unknown", models.RowError{Field: "color", Message: "odd"}, ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ReasonCodeFor(tt.err))
		})
	}
}

func TestCorrectionColumns(t *testing.T) {
	columns := correctionColumns(map[string]bool{
		models.ColumnProductName: true,
		"Value_2":                true,
		"Spec: Storage":          true,
		"Label_1":                true,
		"Spec: RAM":              true,
		"Notes":                  true,
	})

	expected := append(append([]string{}, models.CoreColumns...),
		"Spec: RAM", "Spec: Storage", "Label_1", "Value_1", "Label_2", "Value_2", "Notes")
	assert.Equal(t, expected, columns)
}
