package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"exam-grader/api/internal/examiner"
	"exam-grader/api/internal/util"
)

func (r *Router) acceptDocument(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	doc := msg.Document
	if int64(doc.FileSize) > r.opts.MaxFileBytes {
		r.send(cid, fmt.Sprintf("❌ File too large, the limit is %d MB.", r.opts.MaxFileBytes>>20))
		return
	}
	data, err := r.fetch(ctx, doc.FileID)
	if err != nil {
		r.log.WithError(err).WithField("chat_id", cid).Warn("telegram download failed")
		r.send(cid, "❌ Could not download the file, please resend it.")
		return
	}

	if r.sessions.Get(cid).Mode == modeAwaitModel {
		if util.SniffKind(data) != util.KindPDF {
			r.send(cid, "The model answer must be text or a typed PDF.")
			return
		}
		text, err := r.exam.ModelAnswerText(ctx, data)
		if err != nil {
			r.send(cid, userError(err))
			return
		}
		r.setModelAnswer(cid, text)
		return
	}
	r.grade(ctx, cid, examiner.Submission{Document: data})
}

func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	ph := msg.Photo[len(msg.Photo)-1] // largest size
	data, err := r.fetch(ctx, ph.FileID)
	if err != nil {
		r.log.WithError(err).WithField("chat_id", cid).Warn("telegram download failed")
		r.send(cid, "❌ Could not download the photo, please resend it.")
		return
	}
	if msg.MediaGroupID == "" {
		r.grade(ctx, cid, examiner.Submission{Document: data})
		return
	}
	if first := r.albums.add(msg.MediaGroupID, cid, data, r.opts.AlbumWait, r.gradeAlbum); first {
		r.send(cid, "Photos received. I will treat the whole album as one answer sheet, one page per photo.")
	}
}

// gradeAlbum grades the photos as pages of one document, in the order they arrived.
func (r *Router) gradeAlbum(chatID int64, images [][]byte) {
	r.grade(context.Background(), chatID, examiner.Submission{Images: images})
}

// fetch downloads a Telegram file, refusing anything over the size limit.
func (r *Router) fetch(ctx context.Context, fileID string) ([]byte, error) {
	url, err := r.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.opts.MaxFileBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > r.opts.MaxFileBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", r.opts.MaxFileBytes)
	}
	return data, nil
}

type album struct {
	chatID int64

	mu      sync.Mutex
	images  [][]byte
	timer   *time.Timer
	flushed bool
}

// take hands out the photos exactly once.
func (al *album) take() ([][]byte, bool) {
	al.mu.Lock()
	defer al.mu.Unlock()
	if al.flushed {
		return nil, false
	}
	al.flushed = true
	return al.images, true
}

// albums collects photos that arrive as one media group and flushes them after a quiet period.
type albums struct {
	m sync.Map // media group id -> *album
}

// add appends data to the album and re-arms its timer. It reports whether this was the first photo.
// A photo that arrives after its album was flushed starts a new one.
func (a *albums) add(groupID string, chatID int64, data []byte, wait time.Duration, flush func(int64, [][]byte)) bool {
	for {
		v, _ := a.m.LoadOrStore(groupID, &album{chatID: chatID})
		al := v.(*album)

		al.mu.Lock()
		if al.flushed {
			al.mu.Unlock()
			a.m.CompareAndDelete(groupID, al)
			continue
		}
		al.images = append(al.images, data)
		if al.timer != nil {
			al.timer.Stop()
		}
		al.timer = time.AfterFunc(wait, func() {
			images, ok := al.take()
			if !ok {
				return
			}
			a.m.CompareAndDelete(groupID, al)
			flush(al.chatID, images)
		})
		first := len(al.images) == 1
		al.mu.Unlock()
		return first
	}
}
