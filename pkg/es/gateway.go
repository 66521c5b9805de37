package es

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/go-go-golems/swaperoo/pkg/errs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Gateway is a thin typed wrapper over the cluster's bulk, alias, index,
// health, count and refresh operations. It carries no deployment policy.
type Gateway struct {
	client *elasticsearch.Client
}

func NewGateway(client *elasticsearch.Client) *Gateway {
	return &Gateway{client: client}
}

type BulkItem struct {
	Index  string
	ID     string
	Source json.RawMessage
}

type BulkItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Status int    `json:"status,omitempty"`
}

type BulkItemResult struct {
	Op     string
	ID     string
	Status int
	Error  *BulkItemError
}

type BulkResult struct {
	Took      int
	HasErrors bool
	Items     []BulkItemResult
}

type AliasTarget struct {
	Index string `json:"index"`
	Alias string `json:"alias"`
}

type AliasAction struct {
	Add    *AliasTarget `json:"add,omitempty"`
	Remove *AliasTarget `json:"remove,omitempty"`
}

type ClusterHealth struct {
	ClusterName   string `json:"cluster_name"`
	Status        string `json:"status"`
	TimedOut      bool   `json:"timed_out"`
	NumberOfNodes int    `json:"number_of_nodes"`
}

type IndexStats struct {
	DocCount       int64
	StoreSizeBytes int64
	IndexingTotal  int64
	SearchTotal    int64
}

type ClusterInfo struct {
	ClusterName string `json:"cluster_name"`
	Version     struct {
		Number string `json:"number"`
	} `json:"version"`
}

func readBody(res *esapi.Response) ([]byte, error) {
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(res.Body)
	return io.ReadAll(res.Body)
}

func clusterError(op string, statusCode int, body []byte) error {
	if esErr, ok := ParseErrorResponse(body); ok {
		return errs.New(errs.KindCluster, "%s: [%d] %s: %s",
			op, statusCode, esErr.Error.Type, esErr.Error.Reason)
	}
	return errs.New(errs.KindCluster, "%s: [%d] %s", op, statusCode, string(body))
}

// Bulk submits one bulk request built from the given items. Per-item
// failures are reported in the result, not as an error.
func (g *Gateway) Bulk(ctx context.Context, items []BulkItem, refresh bool) (*BulkResult, error) {
	var buf bytes.Buffer
	for _, item := range items {
		header := map[string]map[string]string{
			"index": {"_index": item.Index, "_id": item.ID},
		}
		headerBytes, err := json.Marshal(header)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal bulk action header")
		}
		buf.Write(headerBytes)
		buf.WriteByte('\n')
		buf.Write(item.Source)
		buf.WriteByte('\n')
	}

	options := []func(*esapi.BulkRequest){
		g.client.Bulk.WithContext(ctx),
	}
	if refresh {
		options = append(options, g.client.Bulk.WithRefresh("true"))
	}

	res, err := g.client.Bulk(&buf, options...)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "bulk request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "failed to read bulk response")
	}
	if res.IsError() {
		return nil, clusterError("bulk", res.StatusCode, body)
	}

	var raw struct {
		Took   int  `json:"took"`
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string         `json:"_id"`
			Status int            `json:"status"`
			Error  *BulkItemError `json:"error"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "malformed bulk response")
	}

	result := &BulkResult{Took: raw.Took, HasErrors: raw.Errors}
	for _, item := range raw.Items {
		for op, outcome := range item {
			result.Items = append(result.Items, BulkItemResult{
				Op:     op,
				ID:     outcome.ID,
				Status: outcome.Status,
				Error:  outcome.Error,
			})
		}
	}
	return result, nil
}

// UpdateAliases applies the action list as a single atomic operation.
func (g *Gateway) UpdateAliases(ctx context.Context, actions []AliasAction) (bool, error) {
	bodyBytes, err := json.Marshal(map[string]interface{}{"actions": actions})
	if err != nil {
		return false, errors.Wrap(err, "failed to marshal alias actions")
	}
	log.Debug().RawJSON("actions", bodyBytes).Msg("updating aliases")

	res, err := g.client.Indices.UpdateAliases(
		bytes.NewReader(bodyBytes),
		g.client.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return false, errs.Wrap(errs.KindCluster, err, "alias update request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return false, errs.Wrap(errs.KindCluster, err, "failed to read alias update response")
	}
	if res.IsError() {
		return false, clusterError("update aliases", res.StatusCode, body)
	}

	var ack struct {
		Acknowledged bool `json:"acknowledged"`
	}
	if err := json.Unmarshal(body, &ack); err != nil {
		return false, errs.Wrap(errs.KindCluster, err, "malformed alias update response")
	}
	return ack.Acknowledged, nil
}

// GetAlias returns the indices bound to the alias, empty when absent.
func (g *Gateway) GetAlias(ctx context.Context, name string) ([]string, error) {
	res, err := g.client.Indices.GetAlias(
		g.client.Indices.GetAlias.WithContext(ctx),
		g.client.Indices.GetAlias.WithName(name),
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "get alias request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "failed to read get alias response")
	}
	if res.StatusCode == 404 {
		return []string{}, nil
	}
	if res.IsError() {
		return nil, clusterError("get alias", res.StatusCode, body)
	}

	var bindings map[string]struct {
		Aliases map[string]interface{} `json:"aliases"`
	}
	if err := json.Unmarshal(body, &bindings); err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "malformed get alias response")
	}
	indices := make([]string, 0, len(bindings))
	for index := range bindings {
		indices = append(indices, index)
	}
	sort.Strings(indices)
	return indices, nil
}

func (g *Gateway) AliasExists(ctx context.Context, name string) (bool, error) {
	res, err := g.client.Indices.ExistsAlias(
		[]string{name},
		g.client.Indices.ExistsAlias.WithContext(ctx),
	)
	if err != nil {
		return false, errs.Wrap(errs.KindCluster, err, "alias exists request failed")
	}
	_, _ = readBody(res)
	return res.StatusCode == 200, nil
}

// CreateIndex creates the index with the given mapping, optionally binding
// an alias in the same call. Fails if the index already exists.
func (g *Gateway) CreateIndex(ctx context.Context, name string, mapping json.RawMessage, alias string) error {
	createBody := map[string]interface{}{}
	if len(mapping) > 0 {
		createBody["mappings"] = mapping
	}
	if alias != "" {
		createBody["aliases"] = map[string]interface{}{alias: map[string]interface{}{}}
	}
	bodyBytes, err := json.Marshal(createBody)
	if err != nil {
		return errors.Wrap(err, "failed to marshal create index body")
	}

	res, err := g.client.Indices.Create(
		name,
		g.client.Indices.Create.WithContext(ctx),
		g.client.Indices.Create.WithBody(bytes.NewReader(bodyBytes)),
	)
	if err != nil {
		return errs.Wrap(errs.KindCluster, err, "create index request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return errs.Wrap(errs.KindCluster, err, "failed to read create index response")
	}
	if res.IsError() {
		if esErr, ok := ParseErrorResponse(body); ok && esErr.Error.Type == "resource_already_exists_exception" {
			return errs.New(errs.KindPreconditionFailed, "index %s already exists", name)
		}
		return clusterError("create index "+name, res.StatusCode, body)
	}
	log.Debug().Str("index", name).Str("alias", alias).Msg("index created")
	return nil
}

func (g *Gateway) DeleteIndex(ctx context.Context, name string, ignoreUnavailable bool) error {
	res, err := g.client.Indices.Delete(
		[]string{name},
		g.client.Indices.Delete.WithContext(ctx),
		g.client.Indices.Delete.WithIgnoreUnavailable(ignoreUnavailable),
	)
	if err != nil {
		return errs.Wrap(errs.KindCluster, err, "delete index request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return errs.Wrap(errs.KindCluster, err, "failed to read delete index response")
	}
	if res.IsError() {
		if res.StatusCode == 404 {
			return errs.New(errs.KindNotFound, "index %s not found", name)
		}
		return clusterError("delete index "+name, res.StatusCode, body)
	}
	return nil
}

func (g *Gateway) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := g.client.Indices.Exists(
		[]string{name},
		g.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, errs.Wrap(errs.KindCluster, err, "index exists request failed")
	}
	_, _ = readBody(res)
	return res.StatusCode == 200, nil
}

// GetIndices resolves an index pattern to the sorted list of matching names.
func (g *Gateway) GetIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := g.client.Indices.Get(
		[]string{pattern},
		g.client.Indices.Get.WithContext(ctx),
		g.client.Indices.Get.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "get indices request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "failed to read get indices response")
	}
	if res.StatusCode == 404 {
		return []string{}, nil
	}
	if res.IsError() {
		return nil, clusterError("get indices "+pattern, res.StatusCode, body)
	}

	var indices map[string]json.RawMessage
	if err := json.Unmarshal(body, &indices); err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "malformed get indices response")
	}
	names := make([]string, 0, len(indices))
	for name := range indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *Gateway) RefreshIndex(ctx context.Context, name string) error {
	res, err := g.client.Indices.Refresh(
		g.client.Indices.Refresh.WithContext(ctx),
		g.client.Indices.Refresh.WithIndex(name),
	)
	if err != nil {
		return errs.Wrap(errs.KindCluster, err, "refresh request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return errs.Wrap(errs.KindCluster, err, "failed to read refresh response")
	}
	if res.IsError() {
		return clusterError("refresh "+name, res.StatusCode, body)
	}
	return nil
}

func (g *Gateway) Count(ctx context.Context, name string) (int64, error) {
	res, err := g.client.Count(
		g.client.Count.WithContext(ctx),
		g.client.Count.WithIndex(name),
	)
	if err != nil {
		return 0, errs.Wrap(errs.KindCluster, err, "count request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return 0, errs.Wrap(errs.KindCluster, err, "failed to read count response")
	}
	if res.IsError() {
		return 0, clusterError("count "+name, res.StatusCode, body)
	}

	var count struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(body, &count); err != nil {
		return 0, errs.Wrap(errs.KindCluster, err, "malformed count response")
	}
	return count.Count, nil
}

// Health requests cluster health, optionally filtered to one index and
// optionally waiting for the given status.
func (g *Gateway) Health(ctx context.Context, index, waitForStatus string, timeout time.Duration) (*ClusterHealth, error) {
	options := []func(*esapi.ClusterHealthRequest){
		g.client.Cluster.Health.WithContext(ctx),
	}
	if index != "" {
		options = append(options, g.client.Cluster.Health.WithIndex(index))
	}
	if waitForStatus != "" {
		options = append(options, g.client.Cluster.Health.WithWaitForStatus(waitForStatus))
	}
	if timeout > 0 {
		options = append(options, g.client.Cluster.Health.WithTimeout(timeout))
	}

	res, err := g.client.Cluster.Health(options...)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "cluster health request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "failed to read cluster health response")
	}
	// A 408 still carries a usable health body when wait_for_status timed out.
	if res.IsError() && res.StatusCode != 408 {
		return nil, clusterError("cluster health", res.StatusCode, body)
	}

	var health ClusterHealth
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "malformed cluster health response")
	}
	return &health, nil
}

func (g *Gateway) Stats(ctx context.Context, name string) (*IndexStats, error) {
	res, err := g.client.Indices.Stats(
		g.client.Indices.Stats.WithContext(ctx),
		g.client.Indices.Stats.WithIndex(name),
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "index stats request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "failed to read index stats response")
	}
	if res.IsError() {
		return nil, clusterError("index stats "+name, res.StatusCode, body)
	}

	var raw struct {
		All struct {
			Primaries struct {
				Docs struct {
					Count int64 `json:"count"`
				} `json:"docs"`
				Store struct {
					SizeInBytes int64 `json:"size_in_bytes"`
				} `json:"store"`
				Indexing struct {
					IndexTotal int64 `json:"index_total"`
				} `json:"indexing"`
				Search struct {
					QueryTotal int64 `json:"query_total"`
				} `json:"search"`
			} `json:"primaries"`
		} `json:"_all"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "malformed index stats response")
	}
	return &IndexStats{
		DocCount:       raw.All.Primaries.Docs.Count,
		StoreSizeBytes: raw.All.Primaries.Store.SizeInBytes,
		IndexingTotal:  raw.All.Primaries.Indexing.IndexTotal,
		SearchTotal:    raw.All.Primaries.Search.QueryTotal,
	}, nil
}

// Search runs the given query body against an index or alias and returns
// the raw response.
func (g *Gateway) Search(ctx context.Context, index string, query []byte) (json.RawMessage, error) {
	res, err := g.client.Search(
		g.client.Search.WithContext(ctx),
		g.client.Search.WithIndex(index),
		g.client.Search.WithBody(bytes.NewReader(query)),
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "search request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "failed to read search response")
	}
	if res.IsError() {
		return nil, clusterError("search "+index, res.StatusCode, body)
	}
	return body, nil
}

// GetDocument fetches one document by id. The second return value reports
// whether the document was found.
func (g *Gateway) GetDocument(ctx context.Context, index, id string) (json.RawMessage, bool, error) {
	res, err := g.client.Get(
		index, id,
		g.client.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindCluster, err, "get document request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindCluster, err, "failed to read get document response")
	}
	if res.StatusCode == 404 {
		return nil, false, nil
	}
	if res.IsError() {
		return nil, false, clusterError("get document", res.StatusCode, body)
	}
	return body, true, nil
}

// GetMappings returns the mapping document per matching index.
func (g *Gateway) GetMappings(ctx context.Context, pattern string) (map[string]json.RawMessage, error) {
	res, err := g.client.Indices.GetMapping(
		g.client.Indices.GetMapping.WithContext(ctx),
		g.client.Indices.GetMapping.WithIndex(pattern),
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "get mappings request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "failed to read get mappings response")
	}
	if res.StatusCode == 404 {
		return map[string]json.RawMessage{}, nil
	}
	if res.IsError() {
		return nil, clusterError("get mappings "+pattern, res.StatusCode, body)
	}

	var mappings map[string]json.RawMessage
	if err := json.Unmarshal(body, &mappings); err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "malformed get mappings response")
	}
	return mappings, nil
}

// Info returns cluster name and version, used by the health endpoint.
func (g *Gateway) Info(ctx context.Context) (*ClusterInfo, error) {
	res, err := g.client.Info(
		g.client.Info.WithContext(ctx),
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "info request failed")
	}
	body, err := readBody(res)
	if err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "failed to read info response")
	}
	if res.IsError() {
		return nil, clusterError("info", res.StatusCode, body)
	}

	var info ClusterInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, errs.Wrap(errs.KindCluster, err, "malformed info response")
	}
	return &info, nil
}
