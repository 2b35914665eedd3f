package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger — общий логгер сервиса: stdout, без префиксов, каждая запись —
// готовая JSON-строка. Ленивая инициализация, чтобы тесты могли подменить
// вывод через SetOutput.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest пишет одну JSON-строку с полями HTTP-запроса (request_id,
// метод, путь, статус, длительность). Ошибка сериализации не роняет
// запрос — вместо записи уходит маркер.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
