// Package estest provides an in-memory stand-in for the search cluster,
// served over httptest so the real client can talk to it. It implements
// just enough of the bulk, alias, index, count, health, refresh, stats,
// search and document APIs for package tests.
package estest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
)

type document struct {
	source json.RawMessage
}

type index struct {
	mapping json.RawMessage
	docs    map[string]*document
	health  string
}

// Cluster is a fake single-node cluster. All knobs are safe for
// concurrent use.
type Cluster struct {
	mu      sync.Mutex
	srv     *httptest.Server
	indices map[string]*index
	aliases map[string]map[string]bool

	failBulkIDs      map[string]string
	bulkCalls        int
	failAliasUpdates bool
}

func NewCluster() *Cluster {
	c := &Cluster{
		indices:     map[string]*index{},
		aliases:     map[string]map[string]bool{},
		failBulkIDs: map[string]string{},
	}
	c.srv = httptest.NewServer(http.HandlerFunc(c.handle))
	return c
}

func (c *Cluster) URL() string { return c.srv.URL }

func (c *Cluster) Close() { c.srv.Close() }

// Client returns a real client pointed at the fake.
func (c *Cluster) Client(t *testing.T) *elasticsearch.Client {
	t.Helper()
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{c.srv.URL},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

// SetHealth overrides the reported health for one index.
func (c *Cluster) SetHealth(name, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.indices[name]; ok {
		idx.health = status
	}
}

// FailBulkID makes subsequent bulk items with this id fail.
func (c *Cluster) FailBulkID(id, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failBulkIDs[id] = reason
}

// FailAliasUpdates makes subsequent _aliases requests fail.
func (c *Cluster) FailAliasUpdates(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAliasUpdates = fail
}

// BulkCalls reports how many bulk requests the cluster has received.
func (c *Cluster) BulkCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bulkCalls
}

// HasIndex reports whether the index exists.
func (c *Cluster) HasIndex(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.indices[name]
	return ok
}

// DocCount returns the number of documents in one index.
func (c *Cluster) DocCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.indices[name]; ok {
		return len(idx.docs)
	}
	return 0
}

// AliasIndices returns the sorted indices bound to an alias.
func (c *Cluster) AliasIndices(alias string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for name := range c.aliases[alias] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SeedIndex creates an index directly, bypassing the API.
func (c *Cluster) SeedIndex(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureIndex(name)
}

// SeedDoc writes a document directly, creating the index if needed.
func (c *Cluster) SeedDoc(indexName, id string, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.ensureIndex(indexName)
	idx.docs[id] = &document{source: json.RawMessage(source)}
}

// SeedAlias binds an alias directly, bypassing the API.
func (c *Cluster) SeedAlias(alias, indexName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aliases[alias] == nil {
		c.aliases[alias] = map[string]bool{}
	}
	c.aliases[alias][indexName] = true
}

func (c *Cluster) ensureIndex(name string) *index {
	if idx, ok := c.indices[name]; ok {
		return idx
	}
	idx := &index{docs: map[string]*document{}, health: "yellow"}
	c.indices[name] = idx
	return idx
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errType, reason string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"type":   errType,
			"reason": reason,
		},
		"status": status,
	})
}

func (c *Cluster) handle(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(segments) == 1 && segments[0] == "" {
		writeJSON(w, 200, map[string]interface{}{
			"cluster_name": "estest",
			"version":      map[string]interface{}{"number": "8.18.0"},
		})
		return
	}

	switch segments[0] {
	case "_aliases":
		c.handleAliasUpdate(w, r)
		return
	case "_alias":
		c.handleAliasGet(w, r, segments[1])
		return
	case "_bulk":
		c.handleBulk(w, r)
		return
	case "_cluster":
		indexFilter := ""
		if len(segments) == 3 {
			indexFilter = segments[2]
		}
		c.handleHealth(w, r, indexFilter)
		return
	}

	name := segments[0]
	if len(segments) == 1 {
		c.handleIndex(w, r, name)
		return
	}

	switch segments[1] {
	case "_count":
		c.handleCount(w, name)
	case "_refresh":
		writeJSON(w, 200, map[string]interface{}{"_shards": map[string]int{"failed": 0}})
	case "_stats":
		c.handleStats(w, name)
	case "_mapping":
		c.handleMapping(w, name)
	case "_search":
		c.handleSearch(w, r, name)
	case "_doc":
		c.handleDoc(w, name, segments[2])
	default:
		writeError(w, 400, "illegal_argument_exception", "unsupported endpoint "+r.URL.Path)
	}
}

func (c *Cluster) handleIndex(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodHead:
		if _, ok := c.indices[name]; ok {
			writeJSON(w, 200, map[string]bool{})
			return
		}
		writeJSON(w, 404, map[string]bool{})
	case http.MethodPut:
		if _, ok := c.indices[name]; ok {
			writeError(w, 400, "resource_already_exists_exception",
				fmt.Sprintf("index [%s] already exists", name))
			return
		}
		var body struct {
			Mappings json.RawMessage            `json:"mappings"`
			Aliases  map[string]json.RawMessage `json:"aliases"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		idx := c.ensureIndex(name)
		idx.mapping = body.Mappings
		for alias := range body.Aliases {
			if c.aliases[alias] == nil {
				c.aliases[alias] = map[string]bool{}
			}
			c.aliases[alias][name] = true
		}
		writeJSON(w, 200, map[string]interface{}{"acknowledged": true, "index": name})
	case http.MethodDelete:
		if _, ok := c.indices[name]; !ok {
			if r.URL.Query().Get("ignore_unavailable") == "true" {
				writeJSON(w, 200, map[string]interface{}{"acknowledged": true})
				return
			}
			writeError(w, 404, "index_not_found_exception", "no such index ["+name+"]")
			return
		}
		delete(c.indices, name)
		for _, bound := range c.aliases {
			delete(bound, name)
		}
		writeJSON(w, 200, map[string]interface{}{"acknowledged": true})
	case http.MethodGet:
		matches := c.matchIndices(name)
		if len(matches) == 0 {
			if strings.ContainsAny(name, "*?") || r.URL.Query().Get("ignore_unavailable") == "true" {
				writeJSON(w, 200, map[string]interface{}{})
				return
			}
			writeError(w, 404, "index_not_found_exception", "no such index ["+name+"]")
			return
		}
		body := map[string]interface{}{}
		for _, match := range matches {
			body[match] = map[string]interface{}{
				"mappings": c.indices[match].mapping,
			}
		}
		writeJSON(w, 200, body)
	default:
		writeError(w, 405, "illegal_argument_exception", "unsupported method")
	}
}

func (c *Cluster) matchIndices(pattern string) []string {
	var matches []string
	for name := range c.indices {
		if ok, _ := path.Match(pattern, name); ok {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches
}

// resolve maps an alias or index name to concrete index names.
func (c *Cluster) resolve(name string) []string {
	if _, ok := c.indices[name]; ok {
		return []string{name}
	}
	if bound, ok := c.aliases[name]; ok {
		var names []string
		for idx := range bound {
			names = append(names, idx)
		}
		sort.Strings(names)
		return names
	}
	return c.matchIndices(name)
}

func (c *Cluster) handleAliasUpdate(w http.ResponseWriter, r *http.Request) {
	if c.failAliasUpdates {
		writeError(w, 500, "process_cluster_event_timeout_exception", "alias update rejected")
		return
	}
	var body struct {
		Actions []map[string]struct {
			Index string `json:"index"`
			Alias string `json:"alias"`
		} `json:"actions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, 400, "parse_exception", "malformed actions body")
		return
	}

	// the whole action list applies atomically, so validate first
	for _, action := range body.Actions {
		for verb, target := range action {
			if verb != "add" && verb != "remove" {
				writeError(w, 400, "illegal_argument_exception", "unsupported action "+verb)
				return
			}
			if _, ok := c.indices[target.Index]; !ok {
				writeError(w, 404, "index_not_found_exception",
					"no such index ["+target.Index+"]")
				return
			}
		}
	}

	for _, action := range body.Actions {
		for verb, target := range action {
			switch verb {
			case "add":
				if c.aliases[target.Alias] == nil {
					c.aliases[target.Alias] = map[string]bool{}
				}
				c.aliases[target.Alias][target.Index] = true
			case "remove":
				delete(c.aliases[target.Alias], target.Index)
			}
		}
	}
	writeJSON(w, 200, map[string]interface{}{"acknowledged": true})
}

func (c *Cluster) handleAliasGet(w http.ResponseWriter, r *http.Request, alias string) {
	bound := c.aliases[alias]
	if len(bound) == 0 {
		if r.Method == http.MethodHead {
			writeJSON(w, 404, nil)
			return
		}
		writeError(w, 404, "alias_not_found_exception", "alias ["+alias+"] missing")
		return
	}
	if r.Method == http.MethodHead {
		writeJSON(w, 200, nil)
		return
	}
	body := map[string]interface{}{}
	for name := range bound {
		body[name] = map[string]interface{}{
			"aliases": map[string]interface{}{alias: map[string]interface{}{}},
		}
	}
	writeJSON(w, 200, body)
}

func (c *Cluster) handleBulk(w http.ResponseWriter, r *http.Request) {
	c.bulkCalls++

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)

	var items []map[string]interface{}
	anyErrors := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var header map[string]struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		}
		if err := json.Unmarshal(line, &header); err != nil {
			writeError(w, 400, "parse_exception", "malformed bulk header")
			return
		}
		action, ok := header["index"]
		if !ok {
			writeError(w, 400, "illegal_argument_exception", "only index actions supported")
			return
		}
		if !scanner.Scan() {
			writeError(w, 400, "parse_exception", "missing bulk source line")
			return
		}
		source := append([]byte(nil), bytes.TrimSpace(scanner.Bytes())...)

		if reason, failed := c.failBulkIDs[action.ID]; failed {
			anyErrors = true
			items = append(items, map[string]interface{}{
				"index": map[string]interface{}{
					"_id":    action.ID,
					"status": 400,
					"error": map[string]interface{}{
						"type":   "mapper_parsing_exception",
						"reason": reason,
					},
				},
			})
			continue
		}

		idx, ok := c.indices[action.Index]
		if !ok {
			anyErrors = true
			items = append(items, map[string]interface{}{
				"index": map[string]interface{}{
					"_id":    action.ID,
					"status": 404,
					"error": map[string]interface{}{
						"type":   "index_not_found_exception",
						"reason": "no such index [" + action.Index + "]",
					},
				},
			})
			continue
		}

		status := 201
		if _, exists := idx.docs[action.ID]; exists {
			status = 200
		}
		idx.docs[action.ID] = &document{source: source}
		items = append(items, map[string]interface{}{
			"index": map[string]interface{}{
				"_id":    action.ID,
				"status": status,
			},
		})
	}

	writeJSON(w, 200, map[string]interface{}{
		"took":   1,
		"errors": anyErrors,
		"items":  items,
	})
}

func (c *Cluster) handleHealth(w http.ResponseWriter, r *http.Request, indexFilter string) {
	status := "green"
	if indexFilter != "" {
		idx, ok := c.indices[indexFilter]
		if !ok {
			status = "red"
		} else {
			status = idx.health
		}
	}
	writeJSON(w, 200, map[string]interface{}{
		"cluster_name":    "estest",
		"status":          status,
		"timed_out":       false,
		"number_of_nodes": 1,
	})
}

func (c *Cluster) handleCount(w http.ResponseWriter, name string) {
	count := 0
	for _, idxName := range c.resolve(name) {
		count += len(c.indices[idxName].docs)
	}
	writeJSON(w, 200, map[string]interface{}{"count": count})
}

func (c *Cluster) handleStats(w http.ResponseWriter, name string) {
	matches := c.resolve(name)
	if len(matches) == 0 {
		writeError(w, 404, "index_not_found_exception", "no such index ["+name+"]")
		return
	}
	docCount := 0
	storeSize := 0
	for _, idxName := range matches {
		idx := c.indices[idxName]
		docCount += len(idx.docs)
		for _, doc := range idx.docs {
			storeSize += len(doc.source)
		}
	}
	writeJSON(w, 200, map[string]interface{}{
		"_all": map[string]interface{}{
			"primaries": map[string]interface{}{
				"docs":     map[string]interface{}{"count": docCount},
				"store":    map[string]interface{}{"size_in_bytes": storeSize},
				"indexing": map[string]interface{}{"index_total": docCount},
				"search":   map[string]interface{}{"query_total": 0},
			},
		},
	})
}

func (c *Cluster) handleMapping(w http.ResponseWriter, name string) {
	matches := c.resolve(name)
	if len(matches) == 0 {
		writeError(w, 404, "index_not_found_exception", "no such index ["+name+"]")
		return
	}
	body := map[string]interface{}{}
	for _, idxName := range matches {
		mappingDoc := c.indices[idxName].mapping
		if mappingDoc == nil {
			mappingDoc = json.RawMessage(`{}`)
		}
		body[idxName] = map[string]interface{}{"mappings": mappingDoc}
	}
	writeJSON(w, 200, body)
}

func (c *Cluster) handleSearch(w http.ResponseWriter, r *http.Request, name string) {
	matches := c.resolve(name)
	if len(matches) == 0 {
		writeError(w, 404, "index_not_found_exception", "no such index ["+name+"]")
		return
	}

	var body struct {
		Size *int `json:"size"`
		From int  `json:"from"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	type hit struct {
		Index  string          `json:"_index"`
		ID     string          `json:"_id"`
		Source json.RawMessage `json:"_source"`
	}
	var hits []hit
	for _, idxName := range matches {
		idx := c.indices[idxName]
		var ids []string
		for id := range idx.docs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			hits = append(hits, hit{Index: idxName, ID: id, Source: idx.docs[id].source})
		}
	}

	total := len(hits)
	if body.From > 0 && body.From < len(hits) {
		hits = hits[body.From:]
	} else if body.From >= len(hits) {
		hits = nil
	}
	if body.Size != nil && *body.Size < len(hits) {
		hits = hits[:*body.Size]
	}

	writeJSON(w, 200, map[string]interface{}{
		"took": 1,
		"hits": map[string]interface{}{
			"total": map[string]interface{}{"value": total},
			"hits":  hits,
		},
	})
}

func (c *Cluster) handleDoc(w http.ResponseWriter, name, id string) {
	for _, idxName := range c.resolve(name) {
		if doc, ok := c.indices[idxName].docs[id]; ok {
			writeJSON(w, 200, map[string]interface{}{
				"_index":  idxName,
				"_id":     id,
				"found":   true,
				"_source": doc.source,
			})
			return
		}
	}
	writeJSON(w, 404, map[string]interface{}{"_id": id, "found": false})
}
