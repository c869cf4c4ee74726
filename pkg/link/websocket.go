package link

import (
	"io"
	"net/http"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// DialWebsocket connects to a websocket exporting a device stream.
func DialWebsocket(url string) (*websocket.Conn, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}

// WebsocketHandler serves each websocket connection with serve, which
// owns the stream until it returns.
func WebsocketHandler(serve func(io.ReadWriteCloser)) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		conn.PayloadType = websocket.BinaryFrame
		glog.Infof("link: websocket client %s", conn.Request().RemoteAddr)
		serve(conn)
		glog.Infof("link: websocket client %s left", conn.Request().RemoteAddr)
	})
}
