package usecase

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/model"
)

// Sentinel errors for the job pipelines. ErrClassification carries the retry
// tag so the dispatcher knows it may try again; the rest fail the job on
// first occurrence.
var (
	ErrValidation = goerr.New("validation failed")

	ErrClassification = goerr.New("intent classification failed", goerr.T(model.TagTransient))

	ErrAgentBudgetExceeded = goerr.New("agent step budget exceeded")
)
