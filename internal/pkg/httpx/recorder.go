// httpx — общие обёртки над net/http для мидлваров сервиса.
package httpx

import "net/http"

// Recorder запоминает отданный статус и число записанных байт тела.
// Статус по умолчанию 200: так его видит клиент, если обработчик
// не вызвал WriteHeader.
type Recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

// NewRecorder оборачивает w.
func NewRecorder(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w}
}

func (r *Recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *Recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// Unwrap отдаёт исходный writer для http.ResponseController.
func (r *Recorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Status — итоговый код ответа.
func (r *Recorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Bytes — размер записанного тела.
func (r *Recorder) Bytes() int { return r.bytes }
