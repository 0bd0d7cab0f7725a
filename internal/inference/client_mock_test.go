package inference

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientPredictMocked(t *testing.T) {
	client := NewClient("http://model.internal")
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	body := streamLine(t, Prediction{Filepath: "/img/a.jpg", Prediction: "vulpes vulpes", PredictionScore: 0.95})
	httpmock.RegisterResponder("POST", "http://model.internal/predict",
		httpmock.NewStringResponder(200, body))

	preds, errs := collectPredictions(client.Predict(context.Background(), []string{"/img/a.jpg"}))
	require.Empty(t, errs)
	require.Len(t, preds, 1)
	assert.Equal(t, "vulpes vulpes", preds[0].Prediction)
	assert.InDelta(t, 0.95, preds[0].PredictionScore, 1e-9)

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
