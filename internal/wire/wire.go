// Package wire defines the gateway-strategy wire contract from §6: the
// DataServerRequest/DataServerResponse types, the 4-byte length-prefixed
// framing codec, and the Register/JWT credential check. TLS termination
// and the listener lifecycle are out of scope, grounded on
// ff_standard_lib/src/communicators/communicator.rs's framing shape.
package wire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/golang-jwt/jwt/v5"

	"fundforge/internal/data"
)

// StrategyMode is the mode a strategy registers under.
type StrategyMode int

const (
	ModeBacktest StrategyMode = iota
	ModeLivePaperTrading
	ModeLive
)

// RequestKind discriminates the abstract request set named in §6.
type RequestKind string

const (
	ReqSymbolsVendor             RequestKind = "SymbolsVendor"
	ReqBaseDataTypes             RequestKind = "BaseDataTypes"
	ReqResolutions               RequestKind = "Resolutions"
	ReqWarmUpResolutions         RequestKind = "WarmUpResolutions"
	ReqAccountInfo               RequestKind = "AccountInfo"
	ReqMarkets                   RequestKind = "Markets"
	ReqTickSize                  RequestKind = "TickSize"
	ReqDecimalAccuracy           RequestKind = "DecimalAccuracy"
	ReqSymbolInfo                RequestKind = "SymbolInfo"
	ReqStreamSubscribe           RequestKind = "StreamSubscribe"
	ReqStreamUnsubscribe         RequestKind = "StreamUnsubscribe"
	ReqOrderRequest              RequestKind = "OrderRequest"
	ReqPrimarySubscriptionFor    RequestKind = "PrimarySubscriptionFor"
	ReqCommissionInfo            RequestKind = "CommissionInfo"
	ReqExchangeRate              RequestKind = "ExchangeRate"
	ReqGetCompressedHistorical   RequestKind = "GetCompressedHistoricalData"
	ReqFrontMonthInfo            RequestKind = "FrontMonthInfo"
	ReqAccounts                  RequestKind = "Accounts"
	ReqSymbolNames               RequestKind = "SymbolNames"
	ReqRegister                  RequestKind = "Register"
	ReqRegisterStreamer          RequestKind = "RegisterStreamer"
)

// ResponseKind discriminates the abstract response set named in §6.
type ResponseKind string

const (
	RespSymbolsVendor           ResponseKind = "SymbolsVendor"
	RespBaseDataTypes           ResponseKind = "BaseDataTypes"
	RespResolutions             ResponseKind = "Resolutions"
	RespAccountInfo             ResponseKind = "AccountInfo"
	RespMarkets                 ResponseKind = "Markets"
	RespTickSize                ResponseKind = "TickSize"
	RespSymbolInfo              ResponseKind = "SymbolInfo"
	RespSubscribeResponse       ResponseKind = "SubscribeResponse"
	RespUnSubscribeResponse     ResponseKind = "UnSubscribeResponse"
	RespOrderUpdates            ResponseKind = "OrderUpdates"
	RespLiveAccountUpdates      ResponseKind = "LiveAccountUpdates"
	RespLivePositionUpdates     ResponseKind = "LivePositionUpdates"
	RespGetCompressedHistorical ResponseKind = "GetCompressedHistoricalData"
	RespFrontMonthInfo          ResponseKind = "FrontMonthInfo"
	RespAccounts                ResponseKind = "Accounts"
	RespSymbolNames             ResponseKind = "SymbolNames"
	RespRegistrationResponse    ResponseKind = "RegistrationResponse"
	RespError                   ResponseKind = "Error"
)

// ErrorKind mirrors the §7 taxonomy as it's surfaced on the wire.
type ErrorKind string

const (
	ErrInvalidRequest     ErrorKind = "InvalidRequest"
	ErrConnectionNotFound ErrorKind = "ConnectionNotFound"
	ErrServerError        ErrorKind = "ServerError"
	ErrClientError        ErrorKind = "ClientError"
)

// DataServerRequest is the strategy-to-gateway envelope. CallbackID is 0
// for fire-and-forget stream control messages (Subscribe/Unsubscribe);
// every other kind expects a matching response with the same id.
type DataServerRequest struct {
	Kind       RequestKind          `json:"kind"`
	CallbackID uint64               `json:"callback_id,omitempty"`
	Mode       StrategyMode         `json:"mode,omitempty"`
	Token      string               `json:"token,omitempty"`
	Subscription data.DataSubscription `json:"subscription,omitempty"`
	From       int64                `json:"from,omitempty"` // unix nanos
	To         int64                `json:"to,omitempty"`
	Payload    json.RawMessage      `json:"payload,omitempty"`
}

// DataServerResponse is the gateway-to-strategy envelope.
type DataServerResponse struct {
	Kind       ResponseKind    `json:"kind"`
	CallbackID uint64          `json:"callback_id,omitempty"`
	StreamID   uint16          `json:"stream_id,omitempty"`
	ErrorKind  ErrorKind       `json:"error_kind,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Encode writes a single 4-byte-big-endian-length-prefixed frame.
func Encode(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal: %w", err)
	}
	if len(body) > 1<<32-1 {
		return errors.New("wire: payload too large for a 4-byte length prefix")
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(body)))
	if _, err := w.Write(length[:]); err != nil {
		return fmt.Errorf("wire: writing length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: writing payload: %w", err)
	}
	return nil
}

// Decode reads a single frame and unmarshals it into v.
func Decode(r *bufio.Reader, v any) error {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return fmt.Errorf("wire: reading length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(length[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("wire: reading payload: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("wire: unmarshal: %w", err)
	}
	return nil
}

// Claims is the JWT payload a Register request must present.
type Claims struct {
	Subject string       `json:"sub"`
	Mode    StrategyMode `json:"mode"`
	jwt.RegisteredClaims
}

// CheckRegistration verifies the JWT on a Register request and, if valid,
// returns the claimed mode. This is the full extent of the credential
// check this repository performs; TLS and the listener loop live
// elsewhere (out of scope per §1/§6).
func CheckRegistration(req DataServerRequest, secret []byte) (StrategyMode, error) {
	if req.Kind != ReqRegister {
		return 0, fmt.Errorf("wire: %w: expected Register, got %s", errInvalidRequest, req.Kind)
	}
	token, err := jwt.ParseWithClaims(req.Token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wire: unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("wire: %w: %v", errClientError, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("wire: %w: invalid token", errClientError)
	}
	return claims.Mode, nil
}

var (
	errInvalidRequest = errors.New("invalid request")
	errClientError    = errors.New("client error")
)
