// Package audithook records job lifecycle transitions as structured audit
// events.
//
// Each hook builds an [AuditEvent] and hands it to a [Recorder]. The
// default [LogRecorder] writes events to a slog.Logger; any other sink can
// be plugged in through [RecorderFunc].
//
//	eng, _ := engine.Build(d,
//	    engine.WithExtension(audithook.New(audithook.LogRecorder{Logger: logger},
//	        audithook.WithActions(audithook.ActionJobRetrying, audithook.ActionJobDead),
//	    )),
//	)
package audithook
