package accounts_test

import (
	"errors"
	"testing"

	"github.com/go-estoria/accounts"
	"github.com/go-estoria/accounts/eventstore"
	gofrsuuid "github.com/gofrs/uuid/v5"
	"github.com/google/uuid"
)

func TestParseEventKind(t *testing.T) {
	for _, tt := range []struct {
		haveTag  string
		wantKind accounts.EventKind
	}{
		{haveTag: "Added", wantKind: accounts.EventKindAdded},
		{haveTag: "Updated", wantKind: accounts.EventKindUpdated},
		{haveTag: "Deleted", wantKind: accounts.EventKindDeleted},
		{haveTag: "added", wantKind: accounts.EventKindUnknown},
		{haveTag: " Added", wantKind: accounts.EventKindUnknown},
		{haveTag: "Frobnicated", wantKind: accounts.EventKindUnknown},
		{haveTag: "", wantKind: accounts.EventKindUnknown},
	} {
		t.Run(tt.haveTag, func(t *testing.T) {
			if got := accounts.ParseEventKind(tt.haveTag); got != tt.wantKind {
				t.Errorf("unexpected kind: wanted %s got %s", tt.wantKind, got)
			}
		})
	}
}

func TestNewEnvelope(t *testing.T) {
	account := accounts.Account{ID: uuid.New(), Name: "Alice"}

	for _, tt := range []struct {
		name      string
		haveEvent accounts.Event
		wantType  string
		wantErr   bool
	}{
		{
			name:      "envelopes an added event",
			haveEvent: accounts.AccountAdded{Account: account},
			wantType:  "Added",
		},
		{
			name:      "envelopes an updated event",
			haveEvent: accounts.AccountUpdated{Account: account},
			wantType:  "Updated",
		},
		{
			name:      "envelopes a deleted event",
			haveEvent: accounts.AccountDeleted{ID: account.ID},
			wantType:  "Deleted",
		},
		{
			name:      "refuses an unrecognized event",
			haveEvent: accounts.UnrecognizedEvent{Tag: "Frobnicated"},
			wantErr:   true,
		},
		{
			name:    "refuses a nil event",
			wantErr: true,
		},
		{
			name:      "refuses an account without an id",
			haveEvent: accounts.AccountAdded{Account: accounts.Account{Name: "nobody"}},
			wantErr:   true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			codec := accounts.NewJSONCodec()

			envelope, err := accounts.NewEnvelope(codec, tt.haveEvent)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("NewEnvelope() error: %v", err)
			}
			if envelope.ID.IsNil() {
				t.Error("envelope has no ID")
			}
			if envelope.Type != tt.wantType {
				t.Errorf("unexpected type: wanted %s got %s", tt.wantType, envelope.Type)
			}

			decoded, err := envelope.Decode(codec)
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if decoded.Kind() != tt.haveEvent.Kind() {
				t.Errorf("unexpected decoded kind: wanted %s got %s", tt.haveEvent.Kind(), decoded.Kind())
			}
		})
	}
}

func TestNewEnvelope_UniqueIDs(t *testing.T) {
	codec := accounts.NewJSONCodec()
	evt := accounts.AccountDeleted{ID: uuid.New()}

	seen := map[gofrsuuid.UUID]bool{}
	for range 100 {
		envelope, err := accounts.NewEnvelope(codec, evt)
		if err != nil {
			t.Fatalf("NewEnvelope() error: %v", err)
		}
		if seen[envelope.ID] {
			t.Fatalf("duplicate envelope ID %s", envelope.ID)
		}
		seen[envelope.ID] = true
	}
}

func TestEnvelope_Decode(t *testing.T) {
	id := uuid.New()
	eventID := gofrsuuid.Must(gofrsuuid.NewV7())

	for _, tt := range []struct {
		name      string
		haveType  string
		haveData  string
		wantEvent accounts.Event
		wantErr   bool
	}{
		{
			name:      "decodes an added event",
			haveType:  "Added",
			haveData:  `{"id":"` + id.String() + `","name":"Alice"}`,
			wantEvent: accounts.AccountAdded{Account: accounts.Account{ID: id, Name: "Alice"}},
		},
		{
			name:      "decodes a deleted event",
			haveType:  "Deleted",
			haveData:  `"` + id.String() + `"`,
			wantEvent: accounts.AccountDeleted{ID: id},
		},
		{
			name:      "an unknown tag decodes to an unrecognized event",
			haveType:  "Frobnicated",
			haveData:  `not even json`,
			wantEvent: accounts.UnrecognizedEvent{Tag: "Frobnicated"},
		},
		{
			name:     "an added event with a malformed payload fails",
			haveType: "Added",
			haveData: `{"id":`,
			wantErr:  true,
		},
		{
			name:     "a deleted event with an account payload fails",
			haveType: "Deleted",
			haveData: `{"id":"` + id.String() + `"}`,
			wantErr:  true,
		},
		{
			name:     "an updated event with an empty payload fails",
			haveType: "Updated",
			wantErr:  true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			envelope := accounts.EnvelopeFromEvent(&eventstore.Event{
				ID:   eventID,
				Type: tt.haveType,
				Data: []byte(tt.haveData),
			})

			got, err := envelope.Decode(accounts.NewJSONCodec())
			if tt.wantErr {
				var decodeErr accounts.DecodeError
				if !errors.As(err, &decodeErr) {
					t.Fatalf("unexpected error: wanted DecodeError got %v", err)
				}
				if decodeErr.EventType != tt.haveType || decodeErr.EventID != eventID.String() {
					t.Errorf("unexpected DecodeError fields: %+v", decodeErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}

			switch want := tt.wantEvent.(type) {
			case accounts.AccountAdded:
				if added, ok := got.(accounts.AccountAdded); !ok || !added.Account.Equal(want.Account) {
					t.Errorf("unexpected event: wanted %+v got %+v", want, got)
				}
			default:
				if got != tt.wantEvent {
					t.Errorf("unexpected event: wanted %+v got %+v", tt.wantEvent, got)
				}
			}
		})
	}
}
