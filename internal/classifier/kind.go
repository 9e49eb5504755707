// Package classifier turns mineral color samples into a trained pixel
// classifier. Each model kind is a Model implementation; the trainer builds
// the feature matrix, fits a Scaler and fits the selected model on the
// standardized features.
package classifier

import (
	"strings"

	"mineral-classifier/internal/apperr"
)

// Kind selects a model family.
type Kind int

const (
	NearestNeighbor Kind = iota
	SupportVector
	RandomForest
	KMeans
)

// Kinds lists every supported model kind.
var Kinds = []Kind{NearestNeighbor, SupportVector, RandomForest, KMeans}

// String returns the short tag used in configuration files and flags.
func (k Kind) String() string {
	switch k {
	case NearestNeighbor:
		return "knn"
	case SupportVector:
		return "svm"
	case RandomForest:
		return "rf"
	case KMeans:
		return "kmeans"
	default:
		return "unknown"
	}
}

// Title returns a display name.
func (k Kind) Title() string {
	switch k {
	case NearestNeighbor:
		return "K-Nearest Neighbors"
	case SupportVector:
		return "Support Vector Machine"
	case RandomForest:
		return "Random Forest"
	case KMeans:
		return "K-Means"
	default:
		return "Unknown"
	}
}

// ParseKind accepts short tags ("knn") and long names ("nearest-neighbor").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "knn", "nearest-neighbor", "nearest_neighbor", "k-nearest-neighbors":
		return NearestNeighbor, nil
	case "svm", "support-vector", "support_vector", "svc":
		return SupportVector, nil
	case "rf", "random-forest", "random_forest", "forest":
		return RandomForest, nil
	case "kmeans", "k-means", "k_means":
		return KMeans, nil
	default:
		return NearestNeighbor, apperr.Validation("classifier.kind", "unknown model kind %q (want knn, svm, rf or kmeans)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
