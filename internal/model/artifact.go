package model

import (
	"context"
	"time"
)

// Artifact is a trained model for one forecast horizon plus the metadata needed
// to decide whether it can serve a given feature vector.
type Artifact struct {
	Horizon      int       `json:"horizon"`
	Version      string    `json:"version"`
	SchemaTag    string    `json:"schema_tag"`
	FeatureNames []string  `json:"feature_names"`
	Params       Params    `json:"params"`
	Model        *GBRT     `json:"model"`
	TrainedAt    time.Time `json:"trained_at"`

	DataFrom           time.Time `json:"data_from"`
	DataTo             time.Time `json:"data_to"`
	TrainExamples      int       `json:"train_examples"`
	ValidationExamples int       `json:"validation_examples"`
	ValidationMAE      float64   `json:"validation_mae"`
	ValidationRMSE     float64   `json:"validation_rmse"`
}

// Predict evaluates the artifact's model on a flattened feature vector.
func (a *Artifact) Predict(x []float64) float64 {
	return a.Model.Predict(x)
}

// ArtifactStore persists the current artifact per horizon.
type ArtifactStore interface {
	// Replace makes a the stored artifact for a.Horizon in one atomic step.
	Replace(ctx context.Context, a *Artifact) error
	// LoadAll returns every stored artifact.
	LoadAll(ctx context.Context) ([]*Artifact, error)
}
