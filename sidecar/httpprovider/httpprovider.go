// Package httpprovider is the binary-level wiring for the narrow collaborator
// interfaces sidecar/provider declares: a NetworkingProvider backed by a
// beacon node's REST API, and an RlnProvider backed by a nwaku JSON-RPC
// endpoint. Neither the gossip engine nor the RLN node themselves live in
// this tree; these are thin HTTP clients, not reimplementations of either.
package httpprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

const defaultTimeout = 10 * time.Second

// NetworkingClient implements sidecar/provider.NetworkingProvider against a
// beacon node's REST API (the default Lighthouse HTTP API listens on
// localhost:5052, hence the config default).
type NetworkingClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewNetworkingClient builds a client against a beacon node's HTTP API.
func NewNetworkingClient(baseURL string) *NetworkingClient {
	return &NetworkingClient{baseURL: baseURL, httpClient: &http.Client{Timeout: defaultTimeout}}
}

// Subscribe asks the host beacon node to subscribe its gossip engine to a
// subnet's attestation topic. There is no standardized beacon REST endpoint
// for this; subscription happens as a side effect of validator duties on
// real beacon nodes, so this call is a best-effort notification hook a host
// integration can choose to honor.
func (c *NetworkingClient) Subscribe(ctx context.Context, subnet types.SubnetID) error {
	return c.post(ctx, fmt.Sprintf("/lighthouse/subnets/%d/subscribe", subnet), nil)
}

// Unsubscribe is Subscribe's inverse.
func (c *NetworkingClient) Unsubscribe(ctx context.Context, subnet types.SubnetID) error {
	return c.post(ctx, fmt.Sprintf("/lighthouse/subnets/%d/unsubscribe", subnet), nil)
}

type publishRequest struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

// Publish hands a message straight to the beacon node's own gossip publish
// endpoint, bypassing the friend relay. It implements supervisor.DirectPublisher
// for the fallback path the supervisor falls back to when the privacy path is
// unhealthy or disabled.
func (c *NetworkingClient) Publish(topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return c.post(ctx, "/lighthouse/gossip/publish", publishRequest{Topic: topic, Payload: payload})
}

type beaconHeadResponse struct {
	Data struct {
		Header struct {
			Message struct {
				Slot string `json:"slot"`
			} `json:"message"`
		} `json:"header"`
	} `json:"data"`
}

// CurrentEpochInfo queries the beacon node's head block for the current slot
// and derives the epoch, mirroring the `/eth/v1/beacon/headers/head` API.
func (c *NetworkingClient) CurrentEpochInfo(ctx context.Context) (types.EpochInfo, error) {
	var resp beaconHeadResponse
	if err := c.get(ctx, "/eth/v1/beacon/headers/head", &resp); err != nil {
		return types.EpochInfo{}, err
	}
	var slot uint64
	if _, err := fmt.Sscanf(resp.Data.Header.Message.Slot, "%d", &slot); err != nil {
		return types.EpochInfo{}, types.Wrap(types.KindProviderAPI, err, "parse head slot")
	}
	const slotsPerEpoch = 32
	const secondsPerSlot = 12
	return types.EpochInfo{
		Epoch:          types.EpochFromSlot(slot, slotsPerEpoch),
		Slot:           slot,
		SlotsPerEpoch:  slotsPerEpoch,
		SecondsPerSlot: secondsPerSlot,
	}, nil
}

type duitiesResponse struct {
	Data []struct {
		CommitteeIndex string `json:"committee_index"`
	} `json:"data"`
}

// ValidatorMandatorySubnets derives the mandatory subnet set from a
// validator's attester duties, mirroring `/eth/v1/validator/duties/attester`.
func (c *NetworkingClient) ValidatorMandatorySubnets(ctx context.Context, pubkey string) ([]types.SubnetID, error) {
	var resp duitiesResponse
	if err := c.get(ctx, "/eth/v1/validator/duties/attester/"+pubkey, &resp); err != nil {
		return nil, err
	}
	out := make([]types.SubnetID, 0, len(resp.Data))
	for _, d := range resp.Data {
		var idx uint8
		if _, err := fmt.Sscanf(d.CommitteeIndex, "%d", &idx); err != nil {
			continue
		}
		id, err := types.NewSubnetID(idx)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (c *NetworkingClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return types.Wrap(types.KindProviderAPI, err, "build request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.Wrap(types.KindNetwork, err, "beacon api request")
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return types.Wrap(types.KindNetwork, err, "read beacon api response")
	}
	if resp.StatusCode >= 400 {
		return types.Newf(types.KindProviderAPI, "beacon api %s returned %d: %s", path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return types.Wrap(types.KindProviderAPI, err, "decode beacon api response")
	}
	return nil
}

func (c *NetworkingClient) post(ctx context.Context, path string, payload interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return types.Wrap(types.KindProviderAPI, err, "encode request")
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return types.Wrap(types.KindProviderAPI, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.Wrap(types.KindNetwork, err, "beacon api request")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := ioutil.ReadAll(resp.Body)
		return types.Newf(types.KindProviderAPI, "beacon api %s returned %d: %s", path, resp.StatusCode, b)
	}
	return nil
}

// RlnClient implements sidecar/provider.RlnProvider against a nwaku node's
// JSON-RPC API (the rln_* and relay_* namespaces).
type RlnClient struct {
	rpcURL     string
	httpClient *http.Client
	nextID     int64
}

// NewRlnClient builds a client against a nwaku JSON-RPC endpoint.
func NewRlnClient(rpcURL string) *RlnClient {
	return &RlnClient{rpcURL: rpcURL, httpClient: &http.Client{Timeout: defaultTimeout}}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *RlnClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	c.nextID++
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params})
	if err != nil {
		return types.Wrap(types.KindRLNProof, err, "encode rpc request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return types.Wrap(types.KindRLNProof, err, "build rpc request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.Wrap(types.KindNetwork, err, "rln rpc request")
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return types.Wrap(types.KindNetwork, err, "read rln rpc response")
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return types.Wrap(types.KindRLNProof, err, "decode rln rpc response")
	}
	if rpcResp.Error != nil {
		return types.Newf(types.KindRLNProof, "rln rpc %s: %s", method, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return types.Wrap(types.KindRLNProof, err, "decode rln rpc result")
	}
	return nil
}

// GenerateProof calls rln_generateProof with the payload and target epoch.
func (c *RlnClient) GenerateProof(ctx context.Context, payload []byte, epoch uint64) (types.RlnProof, error) {
	var result struct {
		Nullifier  string `json:"nullifier"`
		Proof      string `json:"proof"`
		SignalHash string `json:"signal_hash"`
	}
	if err := c.call(ctx, "rln_generateProof", []interface{}{payload, epoch}, &result); err != nil {
		return types.RlnProof{}, err
	}
	proof := types.RlnProof{Epoch: epoch, ProofBlob: []byte(result.Proof)}
	copy(proof.Nullifier[:], result.Nullifier)
	copy(proof.SignalHash[:], result.SignalHash)
	return proof, nil
}

// VerifyProof calls rln_verifyProof.
func (c *RlnClient) VerifyProof(ctx context.Context, proof types.RlnProof, payload []byte) (bool, error) {
	var result bool
	if err := c.call(ctx, "rln_verifyProof", []interface{}{proof.ProofBlob, payload, proof.Epoch}, &result); err != nil {
		return false, err
	}
	return result, nil
}

// LightPush calls relay_lightPush, returning the resulting message id.
func (c *RlnClient) LightPush(ctx context.Context, topic string, payload []byte) (string, error) {
	var result string
	if err := c.call(ctx, "relay_lightPush", []interface{}{topic, payload}, &result); err != nil {
		return "", err
	}
	return result, nil
}

// Subscribe opens a polling-backed subscription to topic, since plain
// JSON-RPC has no push transport; the relay_getMessages RPC is polled every
// 500ms and results are forwarded onto the returned channel.
func (c *RlnClient) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var messages [][]byte
				if err := c.call(ctx, "relay_getMessages", []interface{}{topic}, &messages); err != nil {
					continue
				}
				for _, m := range messages {
					select {
					case ch <- m:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

// CurrentEpoch calls rln_getCurrentEpoch.
func (c *RlnClient) CurrentEpoch(ctx context.Context) (uint64, error) {
	var result uint64
	if err := c.call(ctx, "rln_getCurrentEpoch", nil, &result); err != nil {
		return 0, err
	}
	return result, nil
}
