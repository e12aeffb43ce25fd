package authority

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturia/facturia/internal/shared"
	"github.com/facturia/facturia/internal/testing/testcerts"
)

const testAccount = "20123456789"

func newGateway(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewUnstartedServer(handler)
	srv.TLS = &tls.Config{ClientAuth: tls.RequireAnyClientCert}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return NewClient(srv.URL, WithRootCAs(pool), WithTimeout(2*time.Second))
}

func writeIdentity(t *testing.T) Identity {
	t.Helper()
	pair := testcerts.New(t, testAccount)
	dir := t.TempDir()
	id := Identity{
		AccountID: testAccount,
		CertPath:  filepath.Join(dir, "cert.crt"),
		KeyPath:   filepath.Join(dir, "key.key"),
	}
	require.NoError(t, os.WriteFile(id.CertPath, []byte(pair.CertPEM), 0o600))
	require.NoError(t, os.WriteFile(id.KeyPath, []byte(pair.KeyPEM), 0o600))
	return id
}

func openSession(t *testing.T, handler http.HandlerFunc) *Session {
	t.Helper()
	client := newGateway(t, handler)
	session, err := client.Open(context.Background(), writeIdentity(t))
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func TestLastVoucherPresentsClientCertificate(t *testing.T) {
	session := openSession(t, func(w http.ResponseWriter, r *http.Request) {
		if len(r.TLS.PeerCertificates) == 0 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/wsfe/last-voucher", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, testAccount, body["Cuit"])
		assert.EqualValues(t, 2, body["PtoVta"])
		assert.EqualValues(t, 11, body["CbteTipo"])
		_, _ = io.WriteString(w, `{"CbteNro":41}`)
	})

	last, err := session.LastVoucher(context.Background(), 2, 11)
	require.NoError(t, err)
	require.Equal(t, int64(41), last)
}

func TestCreateVoucherApproved(t *testing.T) {
	for _, expiry := range []string{"20250620", "2025-06-20"} {
		t.Run(expiry, func(t *testing.T) {
			session := openSession(t, func(w http.ResponseWriter, r *http.Request) {
				var body VoucherRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, int64(42), body.CbteDesde)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"Resultado": "A",
					"CAE":       "75123456789012",
					"CAEFchVto": expiry,
					"CbteDesde": body.CbteDesde,
				})
			})

			auth, err := session.CreateVoucher(context.Background(), VoucherRequest{CbteDesde: 42, CbteHasta: 42})
			require.NoError(t, err)
			require.Equal(t, "75123456789012", auth.Code)
			require.Equal(t, "2025-06-20", auth.Expiry.String())
			require.Equal(t, int64(42), auth.VoucherNumber)
		})
	}
}

func TestCreateVoucherApprovedKeepsCodeWithoutExpiry(t *testing.T) {
	for _, expiry := range []string{"", "20-06-2025"} {
		t.Run(expiry, func(t *testing.T) {
			session := openSession(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"Resultado": "A",
					"CAE":       "75123456789012",
					"CAEFchVto": expiry,
					"CbteDesde": 7,
				})
			})

			auth, err := session.CreateVoucher(context.Background(), VoucherRequest{CbteDesde: 7, CbteHasta: 7})
			require.NoError(t, err)
			require.Equal(t, "75123456789012", auth.Code)
			require.Equal(t, int64(7), auth.VoucherNumber)
			require.True(t, auth.Expiry.IsZero())
		})
	}
}

func TestCreateVoucherFaultMapping(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{
			name:    "rejected",
			status:  http.StatusOK,
			body:    `{"Resultado":"R","Observaciones":[{"Code":10015,"Msg":"Importe total invalido"}]}`,
			want:    shared.ErrAuthorityFault,
			message: "Importe total invalido",
		},
		{
			name:    "out of sequence",
			status:  http.StatusOK,
			body:    `{"Resultado":"R","Errors":[{"Code":10016,"Msg":"El numero o fecha del comprobante no se corresponde con el proximo a autorizar"}]}`,
			want:    shared.ErrSequenceConflict,
			message: "10016",
		},
		{
			name:   "gateway conflict",
			status: http.StatusConflict,
			body:   `{"message":"voucher 42 already issued"}`,
			want:   shared.ErrSequenceConflict,
		},
		{
			name:    "soap fault",
			status:  http.StatusInternalServerError,
			body:    `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body><soap:Fault><faultcode>soap:Server</faultcode><faultstring>Fecha invalida</faultstring></soap:Fault></soap:Body></soap:Envelope>`,
			want:    shared.ErrAuthorityFault,
			message: "Rechazo de AFIP: Revisa fechas o montos.",
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `not json`,
			want:   shared.ErrAuthorityFault,
		},
		{
			name:   "gateway timeout",
			status: http.StatusGatewayTimeout,
			want:   shared.ErrTransport,
		},
		{
			name:   "missing cae",
			status: http.StatusOK,
			body:   `{"Resultado":"A"}`,
			want:   shared.ErrAuthorityFault,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session := openSession(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := session.CreateVoucher(context.Background(), VoucherRequest{CbteDesde: 1, CbteHasta: 1})
			require.ErrorIs(t, err, tc.want)
			if tc.message != "" {
				require.Contains(t, err.Error(), tc.message)
			}
		})
	}
}

func TestSessionTimeoutIsTransportError(t *testing.T) {
	client := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client.timeout = 100 * time.Millisecond
	session, err := client.Open(context.Background(), writeIdentity(t))
	require.NoError(t, err)
	defer session.Close()

	_, err = session.LastVoucher(context.Background(), 1, 11)
	require.ErrorIs(t, err, shared.ErrTransport)
}

func TestOpenRejectsMalformedKeyPair(t *testing.T) {
	client := NewClient("https://127.0.0.1:1")
	id := writeIdentity(t)
	require.NoError(t, os.WriteFile(id.KeyPath, []byte("not a key"), 0o600))

	_, err := client.Open(context.Background(), id)
	require.ErrorIs(t, err, shared.ErrInvalidRequest)
	require.NotContains(t, err.Error(), "not a key")
}

func TestUnreachableGatewayIsTransportError(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, WithTimeout(time.Second))
	session, err := client.Open(context.Background(), writeIdentity(t))
	require.NoError(t, err)
	defer session.Close()

	_, err = session.LastVoucher(context.Background(), 1, 11)
	require.ErrorIs(t, err, shared.ErrTransport)
}

func TestPing(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	client := NewClient(srv.URL, WithRootCAs(pool))

	require.NoError(t, client.Ping(context.Background()))
	healthy.Store(false)
	require.Error(t, client.Ping(context.Background()))
}
