package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pithecene-io/sliderule/decode"
	"github.com/pithecene-io/sliderule/dispatch"
	"github.com/pithecene-io/sliderule/ipc"
	"github.com/pithecene-io/sliderule/metrics"
	"github.com/pithecene-io/sliderule/recdef"
	"github.com/pithecene-io/sliderule/types"
)

var testDefinitions = map[string]string{
	"atl03r":    `{"__datasize": 8, "field0": {"type": "INT64", "offset": 0, "elements": 1}}`,
	"event":     `{"__datasize": 2, "level": {"type": "UINT16", "offset": 0, "elements": 1}, "attribute": {"type": "STRING", "offset": 16, "elements": 0}}`,
	"exception": `{"__datasize": 4, "code": {"type": "INT32", "offset": 0, "elements": 1}, "text": {"type": "STRING", "offset": 32, "elements": 0}}`,
}

func newDecoder() *decode.Decoder {
	fetch := recdef.FetcherFunc(func(_ context.Context, recordType string) ([]byte, error) {
		def, ok := testDefinitions[recordType]
		if !ok {
			return nil, fmt.Errorf("no definition for %s", recordType)
		}
		return []byte(def), nil
	})
	return decode.NewDecoder(recdef.NewCache(fetch, nil))
}

func atl03r(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return ipc.EncodeFrame("atl03r", b)
}

func eventFrame(level uint16, text string) []byte {
	b := binary.BigEndian.AppendUint16(nil, level)
	b = append(b, text...)
	return ipc.EncodeFrame("event", append(b, 0))
}

func exceptionFrame(code int32, text string) []byte {
	b := binary.BigEndian.AppendUint32(nil, uint32(code))
	b = append(b, text...)
	return ipc.EncodeFrame("exception", append(b, 0))
}

func concat(frames ...[]byte) []byte {
	return bytes.Join(frames, nil)
}

func feedAll(t *testing.T, s *Session, data []byte, size int) error {
	t.Helper()
	for len(data) > 0 {
		n := min(size, len(data))
		if err := s.Feed(t.Context(), data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func values(t *testing.T, recs []*types.Record) []int64 {
	t.Helper()
	out := make([]int64, 0, len(recs))
	for _, r := range recs {
		v, _ := r.Get("field0")
		n, ok := v.Int()
		if !ok {
			t.Fatalf("record %v has no integer field0", r)
		}
		out = append(out, n)
	}
	return out
}

func TestSession_AccumulatesInOrder(t *testing.T) {
	stream := concat(atl03r(1), eventFrame(1, "hello"), atl03r(2), atl03r(3))

	for _, size := range []int{1, 3, 8, 17, len(stream)} {
		t.Run(fmt.Sprintf("chunk=%d", size), func(t *testing.T) {
			collector := metrics.NewCollector("test")
			s := New(newDecoder(), Options{
				Registry:  dispatch.Defaults(nil, false),
				Collector: collector,
			})

			if err := feedAll(t, s, stream, size); err != nil {
				t.Fatalf("Feed failed: %v", err)
			}
			recs, err := s.Finish()
			if err != nil {
				t.Fatalf("Finish failed: %v", err)
			}

			got := values(t, recs)
			if fmt.Sprint(got) != "[1 2 3]" {
				t.Errorf("values = %v, want [1 2 3]", got)
			}

			snap := collector.Snapshot()
			if snap.RecordsAccumulated != 3 || snap.RecordsDispatched != 1 {
				t.Errorf("accumulated=%d dispatched=%d, want 3 and 1", snap.RecordsAccumulated, snap.RecordsDispatched)
			}
			if snap.BytesReceived != int64(len(stream)) {
				t.Errorf("BytesReceived = %d, want %d", snap.BytesReceived, len(stream))
			}
		})
	}
}

func TestSession_WireExample(t *testing.T) {
	s := New(newDecoder(), Options{})
	if err := s.Feed(t.Context(), atl03r(1)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	recs, err := s.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	m := recs[0].Map()
	if m[types.RecordTypeKey] != "atl03r" || m["field0"] != int64(1) {
		t.Errorf("record = %v", m)
	}
}

func TestSession_RetryableException(t *testing.T) {
	collector := metrics.NewCollector("test")
	s := New(newDecoder(), Options{Registry: dispatch.Defaults(nil, false), Collector: collector})

	err := s.Feed(t.Context(), concat(atl03r(1), exceptionFrame(int32(dispatch.CodeTimeout), "timed out"), atl03r(2)))
	if !dispatch.IsRetryable(err) {
		t.Fatalf("expected retryable exception, got %v", err)
	}
	if len(s.Records()) != 0 {
		t.Errorf("records must be discarded on abort, have %d", len(s.Records()))
	}
	if snap := collector.Snapshot(); snap.ExceptionsRetryable != 1 {
		t.Errorf("ExceptionsRetryable = %d, want 1", snap.ExceptionsRetryable)
	}

	// Sticky.
	if err2 := s.Feed(t.Context(), atl03r(3)); !errors.Is(err2, err) {
		t.Errorf("second Feed = %v, want sticky %v", err2, err)
	}
	if _, err3 := s.Finish(); !errors.Is(err3, err) {
		t.Errorf("Finish = %v, want sticky %v", err3, err)
	}
}

func TestSession_FatalException(t *testing.T) {
	s := New(newDecoder(), Options{Registry: dispatch.Defaults(nil, false)})

	err := s.Feed(t.Context(), exceptionFrame(int32(dispatch.CodeResourceDoesNotExist), "no such granule"))
	if !dispatch.IsFatal(err) {
		t.Fatalf("expected fatal exception, got %v", err)
	}
}

func TestSession_UnknownExceptionContinues(t *testing.T) {
	s := New(newDecoder(), Options{Registry: dispatch.Defaults(nil, false)})

	if err := s.Feed(t.Context(), concat(exceptionFrame(99, "odd"), atl03r(5))); err != nil {
		t.Fatalf("unknown exception must not abort: %v", err)
	}
	recs, err := s.Finish()
	if err != nil || len(recs) != 1 {
		t.Fatalf("Finish = (%d records, %v), want 1 record", len(recs), err)
	}
}

func TestSession_NoRegistryAccumulatesEverything(t *testing.T) {
	s := New(newDecoder(), Options{})
	if err := s.Feed(t.Context(), concat(eventFrame(0, "x"), atl03r(1))); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	recs, _ := s.Finish()
	if len(recs) != 2 || recs[0].Type != "event" {
		t.Errorf("records = %v", recs)
	}
}

func TestSession_BadVersionAborts(t *testing.T) {
	bad := atl03r(1)
	bad[1] = 3

	s := New(newDecoder(), Options{})
	err := s.Feed(t.Context(), concat(atl03r(7), bad))

	var frameErr *ipc.FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != ipc.FrameErrorVersion {
		t.Fatalf("expected version FrameError, got %v", err)
	}
	if _, err := s.Finish(); err == nil {
		t.Error("Finish after framing error must fail")
	}
}

func TestSession_DecodeErrorAborts(t *testing.T) {
	collector := metrics.NewCollector("test")
	s := New(newDecoder(), Options{Collector: collector})

	err := s.Feed(t.Context(), ipc.EncodeFrame("atl03r", []byte{1, 2}))
	var recErr *decode.RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *decode.RecordError, got %v", err)
	}
	if collector.Snapshot().DecodeErrors != 1 {
		t.Error("decode error not counted")
	}
}

func TestSession_UnknownTypeAborts(t *testing.T) {
	s := New(newDecoder(), Options{})
	err := s.Feed(t.Context(), ipc.EncodeFrame("mystery", []byte{1}))
	var schemaErr *recdef.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *recdef.SchemaError, got %v", err)
	}
}

func TestSession_TruncatedStream(t *testing.T) {
	frame := atl03r(1)
	s := New(newDecoder(), Options{})
	if err := s.Feed(t.Context(), frame[:len(frame)-3]); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	_, err := s.Finish()
	var frameErr *ipc.FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != ipc.FrameErrorTruncated {
		t.Fatalf("expected truncated FrameError, got %v", err)
	}
}

func TestSession_FeedAfterFinish(t *testing.T) {
	s := New(newDecoder(), Options{})
	if _, err := s.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if err := s.Feed(t.Context(), atl03r(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Feed after Finish = %v, want ErrClosed", err)
	}
}

func TestSession_Observer(t *testing.T) {
	var seen []string
	s := New(newDecoder(), Options{
		Registry: dispatch.Defaults(nil, false),
		Observer: func(rec *types.Record, handled bool) {
			seen = append(seen, fmt.Sprintf("%s:%v", rec.Type, handled))
		},
	})
	if err := s.Feed(t.Context(), concat(eventFrame(2, "w"), atl03r(1))); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if got := strings.Join(seen, ","); got != "event:true,atl03r:false" {
		t.Errorf("observer saw %s", got)
	}
}

func TestSession_Run(t *testing.T) {
	stream := concat(atl03r(10), atl03r(20))
	s := New(newDecoder(), Options{})

	recs, err := s.Run(t.Context(), bytes.NewReader(stream), 5)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := values(t, recs); fmt.Sprint(got) != "[10 20]" {
		t.Errorf("values = %v", got)
	}
}

func TestSession_RunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	s := New(newDecoder(), Options{})
	_, err := s.Run(ctx, bytes.NewReader(atl03r(1)), 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !errors.Is(s.Err(), context.Canceled) {
		t.Errorf("Err() = %v", s.Err())
	}
}
