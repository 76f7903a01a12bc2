package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/soullink/internal/session"
)

func TestSendAttachment_RejectsPlainText(t *testing.T) {
	f := newFixture(t, &fakeClient{}, rollSeq(0.9))
	_, err := f.svc.SendAttachment(context.Background(), session.CharacterSurface("p1"), session.Message{Kind: session.KindText, Text: "hi"})
	if !errors.Is(err, ErrNotAttachment) {
		t.Errorf("err = %v", err)
	}
}

func TestSendAttachment_ImageGetsAutoReply(t *testing.T) {
	client := &fakeClient{reply: "好看！"}
	f := newFixture(t, client, rollSeq(0.9))
	f.addProfile()
	sf := session.CharacterSurface("p1")

	sent, err := f.svc.SendAttachment(context.Background(), sf, session.Message{Kind: session.KindImage, Text: "一张照片"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.Sender != session.SenderUser {
		t.Errorf("sender = %q", sent.Sender)
	}

	waitFor(t, func() bool { return len(f.sessions.History(sf)) == 2 })
	got := f.sessions.History(sf)[1]
	if got.Sender != session.SenderAI || got.Text != "好看！" {
		t.Errorf("reply = %+v", got)
	}
}

func TestSendAttachment_EmptyReplyFallsBack(t *testing.T) {
	client := &fakeClient{reply: "   "}
	f := newFixture(t, client, rollSeq(0.9))
	f.addProfile()
	sf := session.CharacterSurface("p1")

	f.svc.SendAttachment(context.Background(), sf, session.Message{Kind: session.KindVoice, Text: "语音内容", Duration: "0:05"})
	waitFor(t, func() bool { return len(f.sessions.History(sf)) == 2 })
	if got := f.sessions.History(sf)[1].Text; got != "收到。" {
		t.Errorf("fallback = %q", got)
	}
}

func TestSendAttachment_MissingConfigStaysSilent(t *testing.T) {
	f := newFixture(t, &fakeClient{reply: "x"}, rollSeq(0.9))
	sf := session.CharacterSurface("p1")

	f.svc.SendAttachment(context.Background(), sf, session.Message{Kind: session.KindImage, Text: "图"})
	time.Sleep(30 * time.Millisecond)
	if n := len(f.sessions.History(sf)); n != 1 {
		t.Errorf("history len = %d, want only the attachment", n)
	}
	if f.client.callCount() != 0 {
		t.Error("backend called without config")
	}
}

func TestTransfer_AutoAccepted(t *testing.T) {
	f := newFixture(t, &fakeClient{}, rollSeq(0.5, 0.0)) // accept, pool[0]
	sf := session.CharacterSurface("p1")

	sent, err := f.svc.SendAttachment(context.Background(), sf, session.Message{Kind: session.KindTransfer, Amount: 52, Note: "奶茶"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.TransferStatus != session.TransferPending {
		t.Fatalf("status = %q", sent.TransferStatus)
	}

	waitFor(t, func() bool { return len(f.sessions.History(sf)) == 2 })
	hist := f.sessions.History(sf)
	if hist[0].TransferStatus != session.TransferAccepted {
		t.Errorf("status = %q", hist[0].TransferStatus)
	}
	if hist[1].Text != "收到了~ 谢谢" {
		t.Errorf("ack = %q", hist[1].Text)
	}
}

func TestTransfer_AutoRejected(t *testing.T) {
	f := newFixture(t, &fakeClient{}, rollSeq(0.9, 0.99)) // reject, pool[2]
	sf := session.CharacterSurface("p1")

	f.svc.SendAttachment(context.Background(), sf, session.Message{Kind: session.KindTransfer, Amount: 10})
	waitFor(t, func() bool { return len(f.sessions.History(sf)) == 2 })
	hist := f.sessions.History(sf)
	if hist[0].TransferStatus != session.TransferRejected {
		t.Errorf("status = %q", hist[0].TransferStatus)
	}
	if hist[1].Text != "这次先算了哈" {
		t.Errorf("ack = %q", hist[1].Text)
	}
}

func TestTransfer_ManualResolutionWinsOverTimer(t *testing.T) {
	f := newFixtureStagger(t, &fakeClient{}, rollSeq(0.5), time.Millisecond)
	f.svc.opts.TransferDelay = 50 * time.Millisecond
	sf := session.CharacterSurface("p1")

	sent, _ := f.svc.SendAttachment(context.Background(), sf, session.Message{Kind: session.KindTransfer, Amount: 5})
	resolved, err := f.svc.ResolveTransfer(sf, sent.ID, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.TransferStatus != session.TransferRejected {
		t.Errorf("status = %q", resolved.TransferStatus)
	}
	hist := f.sessions.History(sf)
	if hist[1].Text != "这次不收哦" {
		t.Errorf("ack = %q", hist[1].Text)
	}

	// The unattended timer finds the transfer settled and stays quiet.
	time.Sleep(120 * time.Millisecond)
	if n := len(f.sessions.History(sf)); n != 2 {
		t.Errorf("history len = %d after timer", n)
	}
}

func TestTransfer_ManualAcceptAck(t *testing.T) {
	f := newFixture(t, &fakeClient{}, rollSeq(0.9))
	sf := session.CharacterSurface("p1")

	sent, _ := f.svc.SendAttachment(context.Background(), sf, session.Message{Kind: session.KindTransfer, Amount: 20})
	f.svc.Teardown(sf) // stop the unattended timer for a deterministic history
	if _, err := f.svc.ResolveTransfer(sf, sent.ID, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := f.sessions.History(sf)[1].Text; got != "已收款~ 谢谢" {
		t.Errorf("ack = %q", got)
	}
}
