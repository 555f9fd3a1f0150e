// Package server exposes HTTP handlers: the chat page, health checks, the
// room listing, and the favicon placeholder.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Room relay is running!")
}

// FaviconHandler answers favicon requests with an empty image.
func FaviconHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
}

type roomsResponse struct {
	Rooms        []relay.RoomStats `json:"rooms"`
	TotalMembers int               `json:"total_members"`
}

// RoomsHandler lists the rooms of reg with their member counts as JSON.
func RoomsHandler(reg *relay.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := roomsResponse{Rooms: reg.RoomStats()}
		for _, rs := range resp.Rooms {
			resp.TotalMembers += rs.Members
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Info("http.rooms_encode_failed", "err", err)
		}
	}
}

// ChatPageHandler serves the join form and message box that drive the chat
// endpoint from a browser.
func ChatPageHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := fmt.Fprint(w, chatPage); err != nil {
			logger.Info("http.page_write_failed", "err", err)
		}
	}
}

const chatPage = `<!DOCTYPE html>
<html>
<head>
    <title>Multi-Room Chat</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #chat-box {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        .hidden { display: none; }
    </style>
</head>
<body>
    <form id="join-form">
        <label for="room-id">Room ID:</label>
        <input type="text" id="room-id" name="room_id">
        <label for="client-id">Client ID:</label>
        <input type="text" id="client-id" name="client_id">
        <button type="submit">Join Room</button>
    </form>

    <div id="chat-box" class="hidden"></div>
    <input type="text" id="message-input" class="hidden" placeholder="Type your message...">
    <button id="send-button" class="hidden">Send</button>

    <script>
        const joinForm = document.getElementById('join-form');
        const chatBox = document.getElementById('chat-box');
        const messageInput = document.getElementById('message-input');
        const sendButton = document.getElementById('send-button');
        let ws = null;

        function show(visible) {
            for (const el of [chatBox, messageInput, sendButton]) {
                el.classList.toggle('hidden', !visible);
            }
        }

        function append(text) {
            const p = document.createElement('p');
            p.textContent = text;
            chatBox.appendChild(p);
            chatBox.scrollTop = chatBox.scrollHeight;
        }

        function send() {
            const message = messageInput.value;
            if (ws && message.trim() !== '') {
                ws.send(message);
                messageInput.value = '';
            }
        }

        joinForm.addEventListener('submit', function(event) {
            event.preventDefault();
            if (ws) {
                ws.close();
            }
            const roomId = encodeURIComponent(document.getElementById('room-id').value);
            const clientId = encodeURIComponent(document.getElementById('client-id').value);
            const scheme = location.protocol === 'https:' ? 'wss' : 'ws';
            ws = new WebSocket(scheme + '://' + location.host + '/chat/' + roomId + '/' + clientId);

            ws.onopen = function() { show(true); };
            ws.onmessage = function(event) { append(event.data); };
            ws.onclose = function() {
                append('Disconnected');
                console.log('WebSocket disconnected');
            };
        });

        sendButton.addEventListener('click', send);
        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                send();
            }
        });
    </script>
</body>
</html>`
