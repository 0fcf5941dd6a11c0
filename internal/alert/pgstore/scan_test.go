package pgstore

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/linnemanlabs/triagedesk/internal/alert"
)

// docRow is a pgx.Row yielding a fixed doc column or error.
type docRow struct {
	doc []byte
	err error
}

func (r docRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.doc
	return nil
}

func TestScanAlert(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		row         docRow
		wantID      string
		wantErr     bool
		unavailable bool
	}{
		{name: "valid doc", row: docRow{doc: []byte(`{"id":"A1","severity":3,"status":"new","status_history":[]}`)}, wantID: "A1"},
		{name: "no rows", row: docRow{err: pgx.ErrNoRows}},
		{name: "scan failure", row: docRow{err: errors.New("conn reset")}, wantErr: true},
		{name: "malformed doc", row: docRow{doc: []byte(`{"id":`)}, wantErr: true, unavailable: true},
		{name: "non-string id", row: docRow{doc: []byte(`{"id":7}`)}, wantErr: true, unavailable: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a, err := scanAlert(tc.row)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got := errors.Is(err, alert.ErrStoreUnavailable); got != tc.unavailable {
				t.Errorf("errors.Is(err, ErrStoreUnavailable) = %v, want %v (err %v)", got, tc.unavailable, err)
			}
			switch {
			case tc.wantID == "" && a != nil:
				t.Errorf("alert = %+v, want nil", a)
			case tc.wantID != "" && (a == nil || a.ID != tc.wantID):
				t.Errorf("alert = %+v, want id %s", a, tc.wantID)
			}
		})
	}
}
