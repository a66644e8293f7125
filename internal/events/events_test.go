package events

import (
	"encoding/json"
	"testing"
)

func TestHubDeliversInOrder(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(16)

	for i := 0; i < 10; i++ {
		h.Emit(TopicShellData, ShellData{SessionID: "s", Data: string(rune('a' + i))})
	}
	for i := 0; i < 10; i++ {
		ev := <-sub.C
		if got := ev.Payload.(ShellData).Data; got != string(rune('a'+i)) {
			t.Fatalf("event %d data = %q", i, got)
		}
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub()
	slow := h.Subscribe(1)
	fast := h.Subscribe(8)

	h.Emit(TopicShellClosed, ShellClosed{SessionID: "a"})
	h.Emit(TopicShellClosed, ShellClosed{SessionID: "b"})

	if h.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", h.Subscribers())
	}
	if _, ok := <-slow.C; !ok {
		t.Fatal("buffered event lost before close")
	}
	if _, ok := <-slow.C; ok {
		t.Fatal("slow subscriber channel still open")
	}
	if len(fast.C) != 2 {
		t.Errorf("fast subscriber got %d events, want 2", len(fast.C))
	}

	h.Unsubscribe(slow)
	h.Unsubscribe(fast)
	h.Unsubscribe(fast)
	if h.Subscribers() != 0 {
		t.Errorf("Subscribers = %d after unsubscribe", h.Subscribers())
	}
}

func TestPayloadJSONNames(t *testing.T) {
	b, err := json.Marshal(Event{Topic: TopicUploadProgress, Payload: TransferProgress{
		TransferID: "t", SessionID: "s", RemotePath: "/r", BytesTransferred: 1, TotalBytes: 2, Speed: 3,
	}})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"topic":"sftp:upload-progress","payload":{"transferId":"t","sessionId":"s","remotePath":"/r","bytesTransferred":1,"totalBytes":2,"speed":3}}`
	if string(b) != want {
		t.Errorf("json = %s\nwant   %s", b, want)
	}
}

func TestRecorderHelpers(t *testing.T) {
	var r Recorder
	r.Emit(TopicShellData, ShellData{SessionID: "s1", Data: "he"})
	r.Emit(TopicShellData, ShellData{SessionID: "s2", Data: "xx"})
	r.Emit(TopicShellData, ShellData{SessionID: "s1", Data: "llo"})
	r.Emit(TopicShellClosed, ShellClosed{SessionID: "s1"})

	if got := r.ShellOutput("s1"); got != "hello" {
		t.Errorf("ShellOutput = %q", got)
	}
	if !r.Closed("s1") || r.Closed("s2") {
		t.Error("Closed mismatch")
	}
	if n := len(r.Events("")); n != 4 {
		t.Errorf("Events(\"\") = %d, want 4", n)
	}
	Discard.Emit("x", nil)
}
