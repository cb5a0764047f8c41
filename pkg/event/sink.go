package event

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Sink はイベントの受け取り先。
// 実装は並行に呼び出されても安全でなければならない。
type Sink interface {
	Record(ctx context.Context, e *Event)
}

// Emit はイベントを生成してsinkに渡す。
// sinkがnilの場合やシリアライズに失敗した場合は何もしない。
func Emit(ctx context.Context, sink Sink, subject string, eventType Type, data any) {
	if sink == nil {
		return
	}
	e, err := New(subject, eventType, data)
	if err != nil {
		return
	}
	sink.Record(ctx, e)
}

// multiSink は複数のSinkへ同じイベントを配る。
type multiSink []Sink

// Multi は渡されたすべてのSinkへイベントを配るSinkを返す。nilは無視する。
func Multi(sinks ...Sink) Sink {
	var m multiSink
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multiSink) Record(ctx context.Context, e *Event) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}

// LogSink はイベントをzapロガーへ監査ログとして出力する。
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink は新しいLogSinkを生成する。
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// Record はイベントを1行のログとして出力する。
func (s *LogSink) Record(_ context.Context, e *Event) {
	s.logger.Info("監査イベント",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.EventType)),
		zap.String("subject", e.Subject),
		zap.ByteString("data", e.Data),
	)
}

// Recorder はイベントをメモリに保持するSink。テストや診断用途で使用する。
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// Record はイベントを追加する。
func (r *Recorder) Record(_ context.Context, e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events は記録済みのイベントを種類で絞り込んで返す。typesが空の場合はすべて返す。
func (r *Recorder) Events(types ...Type) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(types) == 0 {
		return append([]*Event(nil), r.events...)
	}
	var out []*Event
	for _, e := range r.events {
		for _, t := range types {
			if e.EventType == t {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
