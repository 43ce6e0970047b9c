// Package camera fetches still images and MJPEG streams from the
// intercom's built-in camera.
//
// The camera is served over plain HTTP with Basic Auth on its own port
// (default 8080), independent of the WebSocket control channel:
//
//	http://{host}:{port}/live/jpeg    single JPEG snapshot
//	http://{host}:{port}/live/mjpeg   multipart MJPEG stream
//
// Still fetches are bounded in time and size; StreamTo runs until the
// caller's context is cancelled and forwards the upstream Content-Type
// so the multipart boundary survives proxying.
package camera
