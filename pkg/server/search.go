package server

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/go-go-golems/swaperoo/pkg/errs"
)

const maxSearchLimit = 100

var defaultTextFields = []string{"ProductName^2", "SearchName", "Description", "Brand", "Category"}

type textSearchRequest struct {
	Query     string   `json:"query"`
	Alias     string   `json:"alias,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Offset    int      `json:"offset,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	Highlight bool     `json:"highlight,omitempty"`
}

func (s *Server) searchAlias(requested string) string {
	if requested != "" {
		return requested
	}
	return s.defaultAlias
}

func validateSearchWindow(limit, offset int) (int, error) {
	if limit == 0 {
		limit = 20
	}
	if limit < 0 || limit > maxSearchLimit {
		return 0, errs.New(errs.KindInvalidArgument,
			"limit must be between 1 and %d", maxSearchLimit)
	}
	if offset < 0 {
		return 0, errs.New(errs.KindInvalidArgument, "offset must not be negative")
	}
	return limit, nil
}

func (s *Server) searchText(c echo.Context) error {
	var req textSearchRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errs.New(errs.KindInvalidArgument, "malformed search request"))
	}
	if req.Query == "" {
		return respondError(c, errs.New(errs.KindInvalidArgument, "query must not be empty"))
	}
	limit, err := validateSearchWindow(req.Limit, req.Offset)
	if err != nil {
		return respondError(c, err)
	}

	fields := req.Fields
	if len(fields) == 0 {
		fields = defaultTextFields
	}

	query := map[string]interface{}{
		"from": req.Offset,
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     req.Query,
				"fields":    fields,
				"fuzziness": "AUTO",
			},
		},
	}
	if req.Highlight {
		highlightFields := map[string]interface{}{}
		for _, field := range fields {
			highlightFields[field] = map[string]interface{}{}
		}
		query["highlight"] = map[string]interface{}{"fields": highlightFields}
	}

	return s.runSearch(c, s.searchAlias(req.Alias), query)
}

type criteriaSearchRequest struct {
	Criteria map[string]interface{} `json:"criteria"`
	Alias    string                 `json:"alias,omitempty"`
	Limit    int                    `json:"limit,omitempty"`
	Offset   int                    `json:"offset,omitempty"`
	Sort     []interface{}          `json:"sort,omitempty"`
	Aggs     map[string]interface{} `json:"aggs,omitempty"`
}

func (s *Server) searchCriteria(c echo.Context) error {
	var req criteriaSearchRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errs.New(errs.KindInvalidArgument, "malformed search request"))
	}
	if len(req.Criteria) == 0 {
		return respondError(c, errs.New(errs.KindInvalidArgument, "criteria must not be empty"))
	}
	limit, err := validateSearchWindow(req.Limit, req.Offset)
	if err != nil {
		return respondError(c, err)
	}

	var filters []interface{}
	for field, value := range req.Criteria {
		switch v := value.(type) {
		case []interface{}:
			filters = append(filters, map[string]interface{}{
				"terms": map[string]interface{}{field: v},
			})
		default:
			filters = append(filters, map[string]interface{}{
				"term": map[string]interface{}{field: v},
			})
		}
	}

	query := map[string]interface{}{
		"from": req.Offset,
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		},
	}
	if len(req.Sort) > 0 {
		query["sort"] = req.Sort
	}
	if len(req.Aggs) > 0 {
		query["aggs"] = req.Aggs
	}

	return s.runSearch(c, s.searchAlias(req.Alias), query)
}

func (s *Server) runSearch(c echo.Context, index string, query map[string]interface{}) error {
	body, err := json.Marshal(query)
	if err != nil {
		return respondError(c, err)
	}
	result, err := s.gateway.Search(c.Request().Context(), index, body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSONBlob(http.StatusOK, result)
}

func (s *Server) getProduct(c echo.Context) error {
	productID := c.Param("productId")
	alias := s.searchAlias(c.QueryParam("alias"))

	doc, found, err := s.gateway.GetDocument(c.Request().Context(), alias, productID)
	if err != nil {
		return respondError(c, err)
	}
	if !found {
		return respondError(c, errs.New(errs.KindNotFound,
			"product %s not found", productID))
	}
	return c.JSONBlob(http.StatusOK, doc)
}
