package httpserver

import (
	"io"
	"testing"
	"time"
)

func TestConn_RefCount(t *testing.T) {
	conn, _ := newPipeConn(t)
	conn.SetLifecycle(LifecycleKeepAlive)

	conn.Retain()
	conn.Release()
	if !conn.IsOpen() {
		t.Fatal("connection closed while a reference remains")
	}
	conn.Release()
	if conn.IsOpen() {
		t.Error("connection should close when the last reference is released")
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestConn_FinishHonoursLifecycle(t *testing.T) {
	conn, _ := newPipeConn(t)

	conn.SetLifecycle(LifecycleKeepAlive)
	conn.Finish()
	if !conn.IsOpen() || !conn.KeepAlive() {
		t.Error("keep-alive connection closed by Finish")
	}
	if !conn.Responded() {
		t.Error("Responded() should be true after Finish")
	}

	conn.beginCycle()
	if conn.Responded() {
		t.Error("beginCycle should reset Responded")
	}
	select {
	case <-conn.Finished():
		t.Error("beginCycle should drain the finished signal")
	default:
	}

	conn.SetLifecycle(LifecycleClose)
	conn.Finish()
	if conn.IsOpen() {
		t.Error("Finish with LifecycleClose should close")
	}
}

func TestConn_LeftoverReadFirst(t *testing.T) {
	conn, client := newPipeConn(t)
	conn.unread([]byte("abc"))

	buf := make([]byte, 2)
	n, _ := conn.Read(buf)
	if string(buf[:n]) != "ab" {
		t.Errorf("Read() = %q", buf[:n])
	}
	n, _ = conn.Read(buf)
	if string(buf[:n]) != "c" {
		t.Errorf("Read() = %q", buf[:n])
	}
	if conn.Pending() {
		t.Error("leftover should be drained")
	}

	go func() { _, _ = client.Write([]byte("z")) }()
	n, err := conn.Read(buf)
	if err != nil || string(buf[:n]) != "z" {
		t.Errorf("Read() = %q, %v", buf[:n], err)
	}
}

func TestConn_WriteTimeout(t *testing.T) {
	conn, _ := newPipeConn(t)
	conn.SetWriteTimeout(30 * time.Millisecond)

	// Nobody reads the pipe, so the write must time out.
	if _, err := conn.Write([]byte("x")); err == nil || err == io.EOF {
		t.Errorf("Write() error = %v, want timeout", err)
	}
}

func TestConn_Metadata(t *testing.T) {
	conn, _ := newPipeConn(t)
	if conn.IsSecure() {
		t.Error("plain source reported secure")
	}
	if conn.RemoteAddr() == "" {
		t.Error("RemoteAddr() empty")
	}
	if LifecycleClose.String() != "close" || LifecycleKeepAlive.String() != "keep-alive" {
		t.Error("unexpected lifecycle names")
	}
}
