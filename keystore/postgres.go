package keystore

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// credentialRow is the single-table JSONB representation PostgresGateway
// uses in place of CouchDB's per-document model. The id primary key and the
// indexed principal column (copied from doc's owner field on every Put)
// stand in for the by_identifier and by_principal views.
type credentialRow struct {
	ID        string `gorm:"column:id;primaryKey"`
	Principal string `gorm:"column:principal;index"`
	Doc       []byte `gorm:"column:doc;type:jsonb"`
}

func (credentialRow) TableName() string { return "yar_credentials" }

// PostgresGateway is a Gateway backed by a single JSONB document table,
// selected with --key_store postgres://... in place of CouchDB.
type PostgresGateway struct {
	db     *gorm.DB
	callMu sync.Mutex
}

// NewPostgresGateway opens a connection pool against dsn (a standard
// postgres:// connection string) and ensures the backing table exists.
func NewPostgresGateway(dsn string) (*PostgresGateway, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&credentialRow{}); err != nil {
		return nil, err
	}
	return &PostgresGateway{db: db}, nil
}

// ByID fetches the document stored under id.
func (g *PostgresGateway) ByID(id string, done func(Result)) {
	go func() {
		g.callMu.Lock()
		defer g.callMu.Unlock()

		var row credentialRow
		err := g.db.Where("id = ?", id).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			done(Result{Found: false, Code: http.StatusNotFound})
		case err != nil:
			done(Result{Err: err, Code: http.StatusInternalServerError})
		default:
			done(Result{Found: true, Code: http.StatusOK, Doc: json.RawMessage(row.Doc)})
		}
	}()
}

// Put writes doc under id, upserting on conflict.
func (g *PostgresGateway) Put(id string, doc json.RawMessage, done func(Result)) {
	go func() {
		g.callMu.Lock()
		defer g.callMu.Unlock()

		principal, err := extractPrincipal(doc)
		if err != nil {
			done(Result{Err: err, Code: http.StatusInternalServerError})
			return
		}
		row := credentialRow{ID: id, Principal: principal, Doc: doc}
		err = g.db.Save(&row).Error
		if err != nil {
			done(Result{Err: err, Code: http.StatusInternalServerError})
			return
		}
		done(Result{Found: true, Code: http.StatusOK, Doc: doc})
	}()
}

// ByView queries by the two views the credential service relies on:
// by_identifier resolves to ByID's underlying lookup; by_principal is a
// principal-indexed scan.
func (g *PostgresGateway) ByView(view, key string, done func(Result)) {
	go func() {
		g.callMu.Lock()
		defer g.callMu.Unlock()

		switch view {
		case "all":
			var rows []credentialRow
			if err := g.db.Find(&rows).Error; err != nil {
				done(Result{Err: err, Code: http.StatusInternalServerError})
				return
			}
			docs := make([]json.RawMessage, 0, len(rows))
			for _, r := range rows {
				docs = append(docs, json.RawMessage(r.Doc))
			}
			arr, _ := json.Marshal(docs)
			done(Result{Found: true, Code: http.StatusOK, Doc: arr})
		case "by_identifier":
			var row credentialRow
			err := g.db.Where("id = ?", key).First(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				done(Result{Found: true, Code: http.StatusOK, Doc: json.RawMessage("[]")})
				return
			}
			if err != nil {
				done(Result{Err: err, Code: http.StatusInternalServerError})
				return
			}
			arr, _ := json.Marshal([]json.RawMessage{json.RawMessage(row.Doc)})
			done(Result{Found: true, Code: http.StatusOK, Doc: arr})
		case "by_principal":
			var rows []credentialRow
			if err := g.db.Where("principal = ?", key).Find(&rows).Error; err != nil {
				done(Result{Err: err, Code: http.StatusInternalServerError})
				return
			}
			docs := make([]json.RawMessage, 0, len(rows))
			for _, r := range rows {
				docs = append(docs, json.RawMessage(r.Doc))
			}
			arr, _ := json.Marshal(docs)
			done(Result{Found: true, Code: http.StatusOK, Doc: arr})
		default:
			done(Result{Err: errors.New("keystore: unknown view " + view), Code: http.StatusInternalServerError})
		}
	}()
}

func extractPrincipal(doc json.RawMessage) (string, error) {
	var partial struct {
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(doc, &partial); err != nil {
		return "", err
	}
	return partial.Owner, nil
}
