package server

import (
	"net"
	"net/http"
	"strings"
)

// ------------------------------------------------------------
// 송신자 IP 추출 (로그 한 줄에만 쓰인다)
//
// 로컬 디버깅 도구라 보통은 RemoteAddr 가 곧 송신자지만,
// ngrok / cloudflared 같은 터널 뒤에서는 터널 주소만 보인다.
// 터널이 붙여주는 헤더를 먼저 본다.
//
// 우선순위:
//  1. X-Forwarded-For → 첫 번째로 파싱되는 IP (원 송신자)
//  2. X-Real-IP
//  3. RemoteAddr
// ------------------------------------------------------------

// safeParseIP:
//   - 공백/빈 값 대응
//   - 잘못된 값이 들어오면 nil 반환
func safeParseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// 예: "203.0.113.1, 10.0.1.24"
		for _, part := range strings.Split(xff, ",") {
			if ip := safeParseIP(part); ip != nil {
				return ip.String()
			}
		}
	}

	if ip := safeParseIP(r.Header.Get("X-Real-IP")); ip != nil {
		return ip.String()
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	if ip := safeParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}
