package registrar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentchain/agentchain/internal/chain/protocol"
	"github.com/agentchain/agentchain/internal/domain/registration"
)

func envelopeResponse(t *testing.T, instructions ...protocol.Instruction) map[string]string {
	t.Helper()
	encoded, err := protocol.Transaction{Instructions: instructions}.Encode()
	require.NoError(t, err)
	return map[string]string{"transaction": encoded}
}

func TestBuildReturnsDecodedEnvelope(t *testing.T) {
	register, err := protocol.NewRegisterInstruction(protocol.RegisterAssetPayload{
		AssetKind:  "model",
		ContentRef: "k1",
		RoyaltyBps: 500,
	})
	require.NoError(t, err)
	memo, err := protocol.NewMemoInstruction("asset registration")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/model/transaction", r.URL.Path)

		var body struct {
			S3Key      string `json:"s3_key"`
			RoyaltyBps int    `json:"royalty_bps"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "k1", body.S3Key)
		assert.Equal(t, 500, body.RoyaltyBps)

		writeJSON(w, http.StatusOK, envelopeResponse(t, register, memo))
	}))
	defer srv.Close()

	s := seedSession(t, srv.URL, "tok")
	builder := NewTransactionBuilder(s, zerolog.Nop())

	envelope, err := builder.Build(context.Background(), registration.KindModel, "k1", registration.Terms{RoyaltyBps: 500})
	require.NoError(t, err)
	require.Len(t, envelope.Instructions, 2)

	// The first instruction carries the registration the user approves.
	assert.Equal(t, protocol.InstructionAssetRegister, envelope.Instructions[0].Kind)
	payload, err := protocol.DecodePayload[protocol.RegisterAssetPayload](envelope.Instructions[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "k1", payload.ContentRef)
	assert.Equal(t, 500, payload.RoyaltyBps)
}

func TestBuildRejectsEmptyEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelopeResponse(t))
	}))
	defer srv.Close()

	s := seedSession(t, srv.URL, "tok")
	builder := NewTransactionBuilder(s, zerolog.Nop())

	_, err := builder.Build(context.Background(), registration.KindModel, "k1", registration.Terms{RoyaltyBps: 500})

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
}

func TestBuildWrapsBackendRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusUnprocessableEntity, "TERMS_REJECTED", "royalty above policy ceiling")
	}))
	defer srv.Close()

	s := seedSession(t, srv.URL, "tok")
	builder := NewTransactionBuilder(s, zerolog.Nop())

	_, err := builder.Build(context.Background(), registration.KindModel, "k1", registration.Terms{RoyaltyBps: 9900})

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Contains(t, err.Error(), "TERMS_REJECTED")
}
