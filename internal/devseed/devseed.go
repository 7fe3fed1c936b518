// Package devseed loads the starter model catalog into a development or
// classroom database. Seeding is idempotent: models are matched by name and
// never recreated, so it is safe to run on every course reset.
package devseed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/optilab/optilab-api/internal/data"
	"github.com/optilab/optilab-api/internal/domain/model"
	"github.com/optilab/optilab-api/internal/service"
)

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB        *sql.DB
	models    *service.ModelService
	dataFiles *service.DataFileService
}

// NewServices constructs all required services for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	modelRepo := data.NewModelRepo(db)
	dataFileRepo := data.NewDataFileRepo(db)

	modelService := service.MustNewModelService(service.ModelServiceOptions{
		Repo:      modelRepo,
		DataFiles: dataFileRepo,
	})
	dataFileService := service.MustNewDataFileService(service.DataFileServiceOptions{
		Repo:   dataFileRepo,
		Models: modelRepo,
	})

	return Services{
		DB:        db,
		models:    modelService,
		dataFiles: dataFileService,
	}
}

// Run executes the full seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	failures := 0
	for _, seed := range starterModels() {
		if err := seedModel(ctx, svcs, logger, seed); err != nil {
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

// modelSeed pairs a starter model with the data files that belong to it.
type modelSeed struct {
	request   *model.CreateModelRequest
	dataFiles []*model.CreateDataFileRequest
}

func seedModel(ctx context.Context, svcs Services, logger *slog.Logger, seed modelSeed) error {
	created, err := svcs.models.Create(ctx, seed.request)
	if err != nil {
		if errors.Is(err, data.ErrModelNameExists) {
			// Data files were loaded with the model the first time around.
			if logger != nil {
				logger.InfoContext(ctx, "model already exists", "name", seed.request.Name)
			}
			return nil
		}
		if logger != nil {
			logger.ErrorContext(ctx, "failed to create model", "name", seed.request.Name, "error", err)
		}
		return err
	}
	if logger != nil {
		logger.InfoContext(ctx, "created model", "name", created.Name, "model_id", created.ID)
	}

	for _, fileReq := range seed.dataFiles {
		if _, fileErr := svcs.dataFiles.Create(ctx, created.ID, fileReq); fileErr != nil {
			if logger != nil {
				logger.ErrorContext(
					ctx,
					"failed to create data file",
					"model",
					created.Name,
					"name",
					fileReq.Name,
					"error",
					fileErr,
				)
			}
			return fileErr
		}
		if logger != nil {
			logger.InfoContext(ctx, "created data file", "model", created.Name, "name", fileReq.Name)
		}
	}

	return nil
}

// starterModels returns the course starter catalog: the three classic
// textbook problems students meet first, each with a ready-to-solve data file.
func starterModels() []modelSeed {
	return []modelSeed{
		{
			request: &model.CreateModelRequest{
				Name:         "transportation",
				Description:  stringPtr("Minimum-cost shipment plan from origins to destinations"),
				ModelContent: transportationModel,
				ProblemType:  stringPtr("LP"),
				Tags:         []string{"starter", "linear", "network"},
				IsTemplate:   true,
			},
			dataFiles: []*model.CreateDataFileRequest{
				{
					Name:        "steel-mills",
					FileContent: transportationData,
					FileType:    model.DataFileTypeDat,
				},
			},
		},
		{
			request: &model.CreateModelRequest{
				Name:         "diet",
				Description:  stringPtr("Cheapest food mix meeting nutritional requirements"),
				ModelContent: dietModel,
				ProblemType:  stringPtr("LP"),
				Tags:         []string{"starter", "linear"},
				IsTemplate:   true,
			},
			dataFiles: []*model.CreateDataFileRequest{
				{
					Name:        "cafeteria",
					FileContent: dietData,
					FileType:    model.DataFileTypeDat,
				},
			},
		},
		{
			request: &model.CreateModelRequest{
				Name:         "knapsack",
				Description:  stringPtr("Select items to maximize value within a weight limit"),
				ModelContent: knapsackModel,
				ProblemType:  stringPtr("MIP"),
				Tags:         []string{"starter", "integer"},
				IsTemplate:   true,
			},
			dataFiles: []*model.CreateDataFileRequest{
				{
					Name:        "camping-trip",
					FileContent: knapsackData,
					FileType:    model.DataFileTypeDat,
				},
			},
		},
	}
}

const transportationModel = `set ORIG;   # origins
set DEST;   # destinations

param supply {ORIG} >= 0;   # amounts available at origins
param demand {DEST} >= 0;   # amounts required at destinations

check: sum {i in ORIG} supply[i] = sum {j in DEST} demand[j];

param cost {ORIG,DEST} >= 0;   # shipment costs per unit
var Trans {ORIG,DEST} >= 0;    # units to be shipped

minimize Total_Cost:
   sum {i in ORIG, j in DEST} cost[i,j] * Trans[i,j];

subject to Supply {i in ORIG}:
   sum {j in DEST} Trans[i,j] = supply[i];

subject to Demand {j in DEST}:
   sum {i in ORIG} Trans[i,j] = demand[j];
`

const transportationData = `set ORIG := GARY CLEV PITT ;
set DEST := FRA DET LAN WIN STL FRE LAF ;

param supply :=  GARY 1400  CLEV 2600  PITT 2900 ;

param demand :=
   FRA  900   DET 1200   LAN  600   WIN  400
   STL 1700   FRE 1100   LAF 1000 ;

param cost :
         FRA  DET  LAN  WIN  STL  FRE  LAF :=
   GARY   39   14   11   14   16   82    8
   CLEV   27    9   12    9   26   95   17
   PITT   24   14   17   13   28   99   20 ;
`

const dietModel = `set NUTR;
set FOOD;

param cost {FOOD} > 0;
param f_min {FOOD} >= 0;
param f_max {j in FOOD} >= f_min[j];

param n_min {NUTR} >= 0;
param n_max {i in NUTR} >= n_min[i];

param amt {NUTR,FOOD} >= 0;

var Buy {j in FOOD} >= f_min[j], <= f_max[j];

minimize Total_Cost:
   sum {j in FOOD} cost[j] * Buy[j];

subject to Diet {i in NUTR}:
   n_min[i] <= sum {j in FOOD} amt[i,j] * Buy[j] <= n_max[i];
`

const dietData = `set NUTR := A B1 B2 C ;
set FOOD := BEEF CHK FISH HAM MCH MTL SPG TUR ;

param:   cost  f_min  f_max :=
  BEEF   3.19    0     100
  CHK    2.59    0     100
  FISH   2.29    0     100
  HAM    2.89    0     100
  MCH    1.89    0     100
  MTL    1.99    0     100
  SPG    1.99    0     100
  TUR    2.49    0     100 ;

param:   n_min  n_max :=
   A      700   10000
   C      700   10000
   B1     700   10000
   B2     700   10000 ;

param amt (tr):
           A    C   B1   B2 :=
   BEEF   60   20   10   15
   CHK     8    0   20   20
   FISH    8   10   15   10
   HAM    40   40   35   10
   MCH    15   35   15   15
   MTL    70   30   15   15
   SPG    25   50   25   15
   TUR    60   20   15   10 ;
`

const knapsackModel = `set ITEMS;

param value {ITEMS} >= 0;
param weight {ITEMS} > 0;
param capacity > 0;

var Take {ITEMS} binary;

maximize Total_Value:
   sum {i in ITEMS} value[i] * Take[i];

subject to Capacity:
   sum {i in ITEMS} weight[i] * Take[i] <= capacity;
`

const knapsackData = `set ITEMS := laptop camera tent stove phone ;

param:  value  weight :=
  laptop   60      10
  camera  100      20
  tent    120      30
  stove    40      15
  phone    30       5 ;

param capacity := 50 ;
`

func stringPtr(s string) *string { return &s }
