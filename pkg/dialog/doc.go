// ABOUTME: Dialog audio output package
// ABOUTME: Streams, the playback queue, the output adapter and the device watcher
// Package dialog plays spoken dialog responses on the local output device.
//
// An OutputStream wraps a pull AudioSource and serves exact byte counts; a
// short read marks its end. The Adapter queues streams and drains them from the
// device's frame callback, one frame at a time, in FIFO order. When the queue
// runs dry the adapter stops the graph and fires OutputEnded once. When the
// default device changes it rebuilds the graph on the new device and resumes
// the queue where it left off.
//
// Example:
//
//	backend, err := output.NewMalgo(logger)
//	a, err := dialog.NewAdapter(dialog.Config{
//	    Backend:    backend,
//	    Enumerator: backend,
//	    Logger:     logger,
//	})
//	s, err := dialog.NewOutputStream(src, audio.DefaultOutput)
//	err = a.PlayAudio(ctx, s)
//
// Device changes are delivered by a DeviceWatcher:
//
//	w := dialog.NewDeviceWatcher(backend, 2*time.Second, a.HandleDeviceEvent, logger)
//	go w.Run(ctx)
package dialog
