package server

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a Service over HTTP.
type Client struct {
	set    *connect.Client[SetRequest, SetResponse]
	get    *connect.Client[GetRequest, GetResponse]
	remove *connect.Client[RemoveRequest, RemoveResponse]
	search *connect.Client[SearchRequest, SearchResponse]
	clear  *connect.Client[ClearRequest, ClearResponse]
	stats  *connect.Client[StatsRequest, StatsResponse]
}

// NewClient creates a Client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts := []connect.ClientOption{connect.WithCodec(jsonCodec{})}

	return &Client{
		set:    connect.NewClient[SetRequest, SetResponse](httpClient, baseURL+SetProcedure, opts...),
		get:    connect.NewClient[GetRequest, GetResponse](httpClient, baseURL+GetProcedure, opts...),
		remove: connect.NewClient[RemoveRequest, RemoveResponse](httpClient, baseURL+RemoveProcedure, opts...),
		search: connect.NewClient[SearchRequest, SearchResponse](httpClient, baseURL+SearchProcedure, opts...),
		clear:  connect.NewClient[ClearRequest, ClearResponse](httpClient, baseURL+ClearProcedure, opts...),
		stats:  connect.NewClient[StatsRequest, StatsResponse](httpClient, baseURL+StatsProcedure, opts...),
	}
}

func (c *Client) Set(ctx context.Context, key, value string) (*SetResponse, error) {
	return call(ctx, c.set, &SetRequest{Key: key, Value: value})
}

func (c *Client) Get(ctx context.Context, key string) (*GetResponse, error) {
	return call(ctx, c.get, &GetRequest{Key: key})
}

func (c *Client) Remove(ctx context.Context, keys ...string) (*RemoveResponse, error) {
	return call(ctx, c.remove, &RemoveRequest{Keys: keys})
}

func (c *Client) Search(ctx context.Context, query string, keysOnly bool) (*SearchResponse, error) {
	return call(ctx, c.search, &SearchRequest{Query: query, KeysOnly: keysOnly})
}

func (c *Client) Clear(ctx context.Context) error {
	_, err := call(ctx, c.clear, &ClearRequest{})
	return err
}

func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	return call(ctx, c.stats, &StatsRequest{})
}

func call[Req, Res any](ctx context.Context, client *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
