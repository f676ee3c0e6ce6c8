package definitions

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ocsearch/ocsearch/pkg/db"
)

// Store reads the search definition entities from the SQLite database
// maintained by the external admin tooling. The store never writes to the
// entity tables; schema creation exists for tests and import tools.
type Store struct {
	db *sql.DB
}

// OpenStore opens the definitions database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening definitions database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 30000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InitializeSchema brings the entity tables up to the current schema by
// applying pending migrations. Used by tests and by import tooling; the
// serving path assumes the admin layer already provisioned the database.
func (s *Store) InitializeSchema() error {
	return db.InitializeDatabase(s.db)
}

// loadSearches reads all search definitions.
func (s *Store) loadSearches(ctx context.Context) ([]*SearchDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT search_id, label_en, label_fr, desc_en, desc_fr, core_name,
		       page_template, record_template, item_snippet,
		       record_detail_snippet, breadcrumb_snippet, footer_snippet,
		       info_message_snippet, about_message_snippet,
		       page_size, id_fields,
		       sort_order_en, sort_labels_en, sort_order_fr, sort_labels_fr,
		       mlt_enabled, mlt_page_size, mlt_fields_en, mlt_fields_fr,
		       download_url_en, download_url_fr,
		       download_text_en, download_text_fr
		FROM searches`)
	if err != nil {
		return nil, fmt.Errorf("querying searches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var defs []*SearchDefinition
	for rows.Next() {
		var d SearchDefinition
		var idFields, sortEN, labelsEN, sortFR, labelsFR, mltEN, mltFR string
		if err := rows.Scan(
			&d.SearchID, &d.LabelEN, &d.LabelFR, &d.DescEN, &d.DescFR,
			&d.CoreName, &d.PageTemplate, &d.RecordTemplate, &d.ItemSnippet,
			&d.RecordDetailSnippet, &d.BreadcrumbSnippet, &d.FooterSnippet,
			&d.InfoMessageSnippet, &d.AboutMessageSnippet,
			&d.PageSize, &idFields,
			&sortEN, &labelsEN, &sortFR, &labelsFR,
			&d.MLTEnabled, &d.MLTPageSize, &mltEN, &mltFR,
			&d.DownloadURLEN, &d.DownloadURLFR,
			&d.DownloadTextEN, &d.DownloadTextFR,
		); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		d.IDFields = splitList(idFields)
		d.SortOrderEN = splitList(sortEN)
		d.SortLabelsEN = splitList(labelsEN)
		d.SortOrderFR = splitList(sortFR)
		d.SortLabelsFR = splitList(labelsFR)
		d.MLTFieldsEN = splitList(mltEN)
		d.MLTFieldsFR = splitList(mltFR)
		defs = append(defs, &d)
	}
	return defs, rows.Err()
}

// loadFields reads all fields ordered by facet display order so facet
// lists come out in their configured order.
func (s *Store) loadFields(ctx context.Context) ([]*Field, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field_id, search_id, field_lang, label_en, label_fr,
		       is_search_facet, facet_order, facet_reversed, facet_snippet,
		       is_default_display, extra_fields, custom_snippet
		FROM fields
		ORDER BY facet_order, field_id`)
	if err != nil {
		return nil, fmt.Errorf("querying fields: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var fields []*Field
	for rows.Next() {
		var f Field
		var tag, extra string
		if err := rows.Scan(
			&f.FieldID, &f.SearchID, &tag, &f.LabelEN, &f.LabelFR,
			&f.IsSearchFacet, &f.FacetOrder, &f.FacetReversed, &f.FacetSnippet,
			&f.IsDefaultDisplay, &extra, &f.CustomSnippet,
		); err != nil {
			return nil, fmt.Errorf("scanning field row: %w", err)
		}
		if f.Lang, err = ParseFieldLang(tag); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.FieldID, err)
		}
		f.ExtraFields = splitList(extra)
		fields = append(fields, &f)
	}
	return fields, rows.Err()
}

// loadCodes reads all code table rows.
func (s *Store) loadCodes(ctx context.Context) ([]*Code, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field_id, code_id, label_en, label_fr FROM codes`)
	if err != nil {
		return nil, fmt.Errorf("querying codes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var codes []*Code
	for rows.Next() {
		var c Code
		if err := rows.Scan(&c.FieldID, &c.CodeID, &c.LabelEN, &c.LabelFR); err != nil {
			return nil, fmt.Errorf("scanning code row: %w", err)
		}
		codes = append(codes, &c)
	}
	return codes, rows.Err()
}

// InsertSearch writes a search definition row. Test and tooling helper.
func (s *Store) InsertSearch(d *SearchDefinition) error {
	_, err := s.db.Exec(`
		INSERT INTO searches (
			search_id, label_en, label_fr, desc_en, desc_fr, core_name,
			page_template, record_template, item_snippet,
			record_detail_snippet, breadcrumb_snippet, footer_snippet,
			info_message_snippet, about_message_snippet,
			page_size, id_fields,
			sort_order_en, sort_labels_en, sort_order_fr, sort_labels_fr,
			mlt_enabled, mlt_page_size, mlt_fields_en, mlt_fields_fr,
			download_url_en, download_url_fr, download_text_en, download_text_fr
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SearchID, d.LabelEN, d.LabelFR, d.DescEN, d.DescFR, d.CoreName,
		d.PageTemplate, d.RecordTemplate, d.ItemSnippet,
		d.RecordDetailSnippet, d.BreadcrumbSnippet, d.FooterSnippet,
		d.InfoMessageSnippet, d.AboutMessageSnippet,
		d.PageSize, joinList(d.IDFields),
		joinList(d.SortOrderEN), joinList(d.SortLabelsEN),
		joinList(d.SortOrderFR), joinList(d.SortLabelsFR),
		d.MLTEnabled, d.MLTPageSize,
		joinList(d.MLTFieldsEN), joinList(d.MLTFieldsFR),
		d.DownloadURLEN, d.DownloadURLFR, d.DownloadTextEN, d.DownloadTextFR)
	if err != nil {
		return fmt.Errorf("inserting search %s: %w", d.SearchID, err)
	}
	return nil
}

// InsertField writes a field row. Test and tooling helper.
func (s *Store) InsertField(f *Field) error {
	tag := "bi"
	switch f.Lang {
	case FieldEnglish:
		tag = "en"
	case FieldFrench:
		tag = "fr"
	}
	_, err := s.db.Exec(`
		INSERT INTO fields (
			field_id, search_id, field_lang, label_en, label_fr,
			is_search_facet, facet_order, facet_reversed, facet_snippet,
			is_default_display, extra_fields, custom_snippet
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FieldID, f.SearchID, tag, f.LabelEN, f.LabelFR,
		f.IsSearchFacet, f.FacetOrder, f.FacetReversed, f.FacetSnippet,
		f.IsDefaultDisplay, joinList(f.ExtraFields), f.CustomSnippet)
	if err != nil {
		return fmt.Errorf("inserting field %s: %w", f.FieldID, err)
	}
	return nil
}

// InsertCode writes a code row. Test and tooling helper.
func (s *Store) InsertCode(c *Code) error {
	_, err := s.db.Exec(`
		INSERT INTO codes (field_id, code_id, label_en, label_fr)
		VALUES (?, ?, ?, ?)`,
		c.FieldID, c.CodeID, c.LabelEN, c.LabelFR)
	if err != nil {
		return fmt.Errorf("inserting code %s/%s: %w", c.FieldID, c.CodeID, err)
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinList(parts []string) string {
	return strings.Join(parts, ",")
}
