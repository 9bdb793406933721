// Package controlplane implements the RPC endpoint spec §4.7 describes,
// bound to the broker.ExchangeControllerRPC queue: feed listing/loading and
// recsystem registration/token-rotation, plus a trivial liveness check. The
// method-per-queue shape is grounded on the teacher's usecase Service
// pattern (catchup-feed-backend internal/usecase/source/service.go: a
// struct wrapping its storage collaborator, one exported method per
// operation, input structs for multi-field calls) adapted onto a single
// broker.RPCHandler that demultiplexes by a "method" field in the request
// body — mirroring the original CLI's _RpcProxy, which calls named methods
// (feeds_list, feeds_load, recsystem_register, recsystem_refresh_token,
// status) against one RPC channel (original_source
// backend/renewal_backend/cli.py).
package controlplane

import (
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"pulsefeed/internal/auth"
	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/store"
)

const feedsCollection = "feeds"
const recsystemsCollection = "recsystems"

// Service answers the five controller_rpc methods spec §4.7 names.
type Service struct {
	Store  store.Store
	Issuer *auth.Issuer
}

// FeedInput is one entry of the feeds_load request body.
type FeedInput struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// FeedsList renders every registered feed in the requested format
// ("table", "json", or "csv"), optionally with a header row/line.
func (s *Service) FeedsList(ctx context.Context, format string, header bool) (string, error) {
	docs, err := s.Store.Scan(ctx, feedsCollection, func(store.Document) bool { return true })
	if err != nil {
		return "", fmt.Errorf("controlplane: list feeds: %w", err)
	}
	sort.Slice(docs, func(i, j int) bool {
		return stringField(docs[i], "url") < stringField(docs[j], "url")
	})

	switch format {
	case "json":
		return renderJSON(docs)
	case "csv":
		return renderCSV(docs, header)
	default:
		return renderTable(docs, header)
	}
}

// FeedsLoad registers each feed in feeds, returning one error message per
// entry that failed validation or storage — mirroring the original CLI's
// "currently all messages are errors" contract.
func (s *Service) FeedsLoad(ctx context.Context, feeds []FeedInput) []string {
	var messages []string
	for _, f := range feeds {
		feed := entity.NewFeed(f.URL)
		if f.Type != "" {
			feed.Type = f.Type
		}
		if err := feed.Validate(); err != nil {
			messages = append(messages, fmt.Sprintf("%s: %v", f.URL, err))
			continue
		}
		doc := store.Document{"url": feed.URL, "type": feed.Type}
		if _, err := s.Store.Upsert(ctx, feedsCollection, feed.URL, doc); err != nil {
			messages = append(messages, fmt.Sprintf("%s: %v", f.URL, err))
		}
	}
	return messages
}

// RecsystemRegister inserts a new recsystem and mints its first token,
// rolling the insert back if signing fails (spec §4.7).
func (s *Service) RecsystemRegister(ctx context.Context, name string, owners []string, isBaseline bool) (int64, string, error) {
	tokenID, err := randomTokenID()
	if err != nil {
		return 0, "", fmt.Errorf("controlplane: generate token_id: %w", err)
	}

	rec := entity.Recsystem{Name: name, Owners: owners, IsBaseline: isBaseline, TokenID: tokenID}
	if err := rec.Validate(); err != nil {
		return 0, "", fmt.Errorf("controlplane: invalid recsystem: %w", err)
	}

	doc := recsystemDocument(rec)
	url := recsystemURL(name)
	id, err := s.Store.Upsert(ctx, recsystemsCollection, url, doc)
	if err != nil {
		return 0, "", fmt.Errorf("controlplane: register recsystem: %w", err)
	}

	token, err := s.Issuer.Issue(id, tokenID)
	if err != nil {
		// Roll back the insert: an unusable recsystem with no valid token is
		// worse than none at all.
		_ = s.Store.Delete(ctx, recsystemsCollection, url)
		return 0, "", fmt.Errorf("controlplane: issue token: %w", err)
	}
	return id, token, nil
}

// RecsystemRefreshToken rotates idOrName's token_id, invalidating whatever
// token was previously issued against it, and returns a freshly signed
// token for the new token_id.
func (s *Service) RecsystemRefreshToken(ctx context.Context, idOrName string) (string, error) {
	url, id, err := s.findRecsystem(ctx, idOrName)
	if err != nil {
		return "", err
	}

	tokenID, err := randomTokenID()
	if err != nil {
		return "", fmt.Errorf("controlplane: generate token_id: %w", err)
	}

	if _, err := s.Store.FindOneAndUpdate(ctx, recsystemsCollection, url, store.Update{
		Set: map[string]any{"token_id": tokenID},
	}); err != nil {
		return "", fmt.Errorf("controlplane: rotate token_id: %w", err)
	}

	token, err := s.Issuer.Issue(id, tokenID)
	if err != nil {
		return "", fmt.Errorf("controlplane: issue token: %w", err)
	}
	return token, nil
}

// Status reports whether the controller can reach its store — a liveness
// check, per the original CLI's "returns a zero exit code if the renewal
// controller can be contacted".
func (s *Service) Status(ctx context.Context) (bool, error) {
	if _, err := s.Store.Scan(ctx, feedsCollection, func(store.Document) bool { return false }); err != nil {
		return false, fmt.Errorf("controlplane: status check: %w", err)
	}
	return true, nil
}

func (s *Service) findRecsystem(ctx context.Context, idOrName string) (url string, id int64, err error) {
	docs, err := s.Store.Scan(ctx, recsystemsCollection, func(d store.Document) bool {
		return stringField(d, "name") == idOrName || strconv.FormatInt(d.ID(), 10) == idOrName
	})
	if err != nil {
		return "", 0, fmt.Errorf("controlplane: find recsystem: %w", err)
	}
	if len(docs) == 0 {
		return "", 0, fmt.Errorf("controlplane: no recsystem matching %q", idOrName)
	}
	doc := docs[0]
	return recsystemURL(stringField(doc, "name")), doc.ID(), nil
}

func recsystemDocument(rec entity.Recsystem) store.Document {
	return store.Document{
		"url":         recsystemURL(rec.Name),
		"name":        rec.Name,
		"owners":      rec.Owners,
		"is_baseline": rec.IsBaseline,
		"token_id":    rec.TokenID,
	}
}

// recsystemURL synthesizes the store's required unique "url" key for a
// collection (recsystems) that has no natural URL of its own.
func recsystemURL(name string) string {
	return "recsystem://" + name
}

func randomTokenID() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func stringField(d store.Document, key string) string {
	v, _ := d[key].(string)
	return v
}

func renderJSON(docs []store.Document) (string, error) {
	body, err := json.Marshal(docs)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func renderCSV(docs []store.Document, header bool) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if header {
		if err := w.Write([]string{"url", "type"}); err != nil {
			return "", err
		}
	}
	for _, d := range docs {
		if err := w.Write([]string{stringField(d, "url"), stringField(d, "type")}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func renderTable(docs []store.Document, header bool) (string, error) {
	var sb strings.Builder
	if header {
		sb.WriteString("URL\tTYPE\n")
	}
	for _, d := range docs {
		sb.WriteString(stringField(d, "url"))
		sb.WriteString("\t")
		sb.WriteString(stringField(d, "type"))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
