// Package sonosws реализует клиент локального WebSocket API колонок Sonos
// (wss://<ip>:1443/websocket/api). Клиент держит одно соединение на колонку,
// отправляет конверты [command, options] и ждёт на каждый ровно один ответ,
// переподключаясь, когда канал ломается. Высокоуровневые методы:
//
//   - GetHouseholdID, GetGroups, GetPlayerID (id кешируются),
//   - PlayClip — проиграть аудиоклип по URL.
//
// Соединение:
//   - Connect идемпотентен: при живом канале ничего не делает, параллельные
//     вызовы делят один dial. Отказ в апгрейде — UnauthorizedError (401) или
//     ConnectionError, без ретраев.
//   - Send делает до MaxAttempts попыток. Таймаут ответа, обрыв, close-фрейм и
//     не-текстовый фрейм ретраятся; после потолка — DispatchError с именем
//     команды и числом попыток.
//   - Пока канал открыт, каждые DefaultHeartbeat уходит ping.
//   - Close закрывает канал и сессию, если её создал сам клиент. Dial, который
//     шёл во время Close, свой канал не устанавливает.
//
// Все ошибки пакета матчатся errors.Is(err, ErrWebsocket).
//
// Пример:
//
//	c := sonosws.New("192.168.1.20", sonosws.WithLogger(logger))
//	defer c.Close()
//
//	ctx := context.Background()
//	if err := c.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := c.PlayClip(ctx, "http://nas.local/doorbell.mp3", 40); err != nil {
//	    var unsupported *sonosws.UnsupportedError
//	    if errors.As(err, &unsupported) {
//	        log.Println("колонка не умеет клипы")
//	    }
//	}
package sonosws
