package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"shoplist/internal/models"

	"github.com/golang/glog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	firestore "google.golang.org/api/firestore/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// DefaultPollInterval is how often a Firestore subscription checks for
	// a new updateTime.
	DefaultPollInterval = 3 * time.Second

	datastoreScope = "https://www.googleapis.com/auth/datastore"
)

// Firestore stores documents in Google Cloud Firestore through its REST
// API. The REST surface has no listen stream, so Subscribe polls.
type Firestore struct {
	docs         *firestore.ProjectsDatabasesDocumentsService
	database     string
	pollInterval time.Duration
	timeout      time.Duration
}

// NewFirestore authenticates with credentialsFile (a service account JSON
// key) or, when it is empty, with application default credentials.
func NewFirestore(ctx context.Context, project, credentialsFile string) (*Firestore, error) {
	var tokenSource oauth2.TokenSource
	if credentialsFile != "" {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, datastoreScope)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials: %w", err)
		}
		tokenSource = creds.TokenSource
	} else {
		ts, err := google.DefaultTokenSource(ctx, datastoreScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
		tokenSource = ts
	}

	return NewFirestoreWithHTTPClient(ctx, project, oauth2.NewClient(ctx, tokenSource))
}

// NewFirestoreWithHTTPClient skips authentication. Extra options (such as
// option.WithEndpoint for an emulator or test server) are passed through.
func NewFirestoreWithHTTPClient(ctx context.Context, project string, httpClient *http.Client, opts ...option.ClientOption) (*Firestore, error) {
	if project == "" {
		return nil, fmt.Errorf("firestore project is required")
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := firestore.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore service: %w", err)
	}

	return &Firestore{
		docs:         svc.Projects.Databases.Documents,
		database:     fmt.Sprintf("projects/%s/databases/(default)", project),
		pollInterval: DefaultPollInterval,
		timeout:      DefaultTimeout,
	}, nil
}

// SetPollInterval ignores non-positive durations.
func (f *Firestore) SetPollInterval(d time.Duration) {
	if d > 0 {
		f.pollInterval = d
	}
}

func (f *Firestore) documentName(path string) (string, error) {
	collection, document, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/documents/%s/%s", f.database, collection, document), nil
}

func (f *Firestore) get(ctx context.Context, path string) (*firestore.Document, error) {
	name, err := f.documentName(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	doc, err := f.docs.Get(name).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return doc, nil
}

func (f *Firestore) FetchOnce(ctx context.Context, path string) (*models.Document, error) {
	doc, err := f.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return fromFirestore(doc)
}

// Overwrite patches without an update mask, which replaces every field.
func (f *Firestore) Overwrite(ctx context.Context, path string, doc *models.Document) error {
	name, err := f.documentName(path)
	if err != nil {
		return err
	}

	fsDoc, err := toFirestore(doc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if _, err := f.docs.Patch(name, fsDoc).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (f *Firestore) Subscribe(ctx context.Context, path string, onChange func(*models.Document)) (Subscription, error) {
	if _, err := f.documentName(path); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &cancelSubscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		f.poll(ctx, path, onChange)
	}()

	return sub, nil
}

func (f *Firestore) poll(ctx context.Context, path string, onChange func(*models.Document)) {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	var lastUpdate string
	check := func() {
		doc, err := f.get(ctx, path)
		if errors.Is(err, ErrNotFound) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				glog.Warningf("[firestore] poll %s: %v", path, err)
			}
			return
		}
		if doc.UpdateTime == lastUpdate {
			return
		}
		lastUpdate = doc.UpdateTime

		decoded, err := fromFirestore(doc)
		if err != nil {
			glog.Warningf("[firestore] skipping snapshot of %s: %v", path, err)
			return
		}
		glog.V(2).Infof("[firestore] snapshot %s updated=%s items=%d", path, doc.UpdateTime, len(decoded.ShoppingList))
		onChange(decoded)
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// Firestore's JSON value encoding. Documents are converted through these
// types and then through JSON into the generated client structs.
type fsValue struct {
	StringValue  *string  `json:"stringValue,omitempty"`
	BooleanValue *bool    `json:"booleanValue,omitempty"`
	NullValue    *string  `json:"nullValue,omitempty"`
	ArrayValue   *fsArray `json:"arrayValue,omitempty"`
	MapValue     *fsMap   `json:"mapValue,omitempty"`
}

type fsArray struct {
	Values []fsValue `json:"values,omitempty"`
}

type fsMap struct {
	Fields map[string]fsValue `json:"fields,omitempty"`
}

type fsDocument struct {
	Name       string             `json:"name,omitempty"`
	Fields     map[string]fsValue `json:"fields,omitempty"`
	UpdateTime string             `json:"updateTime,omitempty"`
}

func stringValue(s string) fsValue { return fsValue{StringValue: &s} }
func boolValue(b bool) fsValue     { return fsValue{BooleanValue: &b} }

func encodeFields(doc *models.Document) map[string]fsValue {
	values := make([]fsValue, 0, len(doc.Items()))
	for _, item := range doc.Items() {
		values = append(values, fsValue{MapValue: &fsMap{Fields: map[string]fsValue{
			"id":          stringValue(item.ID),
			"item":        stringValue(item.Label),
			"isCompleted": boolValue(item.IsCompleted),
		}}})
	}
	return map[string]fsValue{
		"shoppingList": {ArrayValue: &fsArray{Values: values}},
	}
}

func decodeFields(fields map[string]fsValue) *models.Document {
	doc := &models.Document{ShoppingList: []models.Item{}}
	list, ok := fields["shoppingList"]
	if !ok || list.ArrayValue == nil {
		return doc
	}
	for _, v := range list.ArrayValue.Values {
		if v.MapValue == nil {
			continue
		}
		var item models.Item
		if s := v.MapValue.Fields["id"].StringValue; s != nil {
			item.ID = *s
		}
		if s := v.MapValue.Fields["item"].StringValue; s != nil {
			item.Label = *s
		}
		if b := v.MapValue.Fields["isCompleted"].BooleanValue; b != nil {
			item.IsCompleted = *b
		}
		doc.ShoppingList = append(doc.ShoppingList, item)
	}
	return doc
}

func toFirestore(doc *models.Document) (*firestore.Document, error) {
	fields := encodeFields(doc)
	data, err := json.Marshal(fsDocument{Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	var out firestore.Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	// Zero values (false, "") are dropped by the generated marshaller unless
	// forced.
	for name, v := range out.Fields {
		forceZeroValues(&v, fields[name])
		out.Fields[name] = v
	}
	return &out, nil
}

func forceZeroValues(dst *firestore.Value, src fsValue) {
	if src.StringValue != nil {
		dst.ForceSendFields = append(dst.ForceSendFields, "StringValue")
	}
	if src.BooleanValue != nil {
		dst.ForceSendFields = append(dst.ForceSendFields, "BooleanValue")
	}
	if src.ArrayValue != nil && dst.ArrayValue != nil {
		for i, v := range dst.ArrayValue.Values {
			if v != nil && i < len(src.ArrayValue.Values) {
				forceZeroValues(v, src.ArrayValue.Values[i])
			}
		}
	}
	if src.MapValue != nil && dst.MapValue != nil {
		for name, v := range dst.MapValue.Fields {
			forceZeroValues(&v, src.MapValue.Fields[name])
			dst.MapValue.Fields[name] = v
		}
	}
}

func fromFirestore(doc *firestore.Document) (*models.Document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}

	var raw fsDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return decodeFields(raw.Fields), nil
}
