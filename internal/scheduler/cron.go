package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidExpression — cron-выражение не разбирается.
// Для scheduler'а это повод пропустить job, а не прервать цикл.
var ErrInvalidExpression = errors.New("invalid cron expression")

// cronParser — парсер cron-выражений: 5 полей, опционально шестое (секунды)
// первым, и дескрипторы вида @daily.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// parseUTC разбирает выражение и фиксирует time zone = UTC.
func parseUTC(expr string) (*cron.SpecSchedule, error) {
	trimmed := strings.TrimSpace(expr)
	if strings.HasPrefix(trimmed, "CRON_TZ=") || strings.HasPrefix(trimmed, "TZ=") {
		return nil, fmt.Errorf("%w %q: time zone prefix is not supported, expressions are evaluated in UTC", ErrInvalidExpression, expr)
	}

	sched, err := cronParser.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidExpression, expr, err)
	}

	// @every считается от момента вызова, а не от календаря:
	// у такого расписания нет стабильных моментов срабатывания.
	spec, ok := sched.(*cron.SpecSchedule)
	if !ok {
		return nil, fmt.Errorf("%w %q: interval descriptors are not supported", ErrInvalidExpression, expr)
	}
	spec.Location = time.UTC
	return spec, nil
}

// ValidateExpression проверяет, что выражение разбирается.
func ValidateExpression(expr string) error {
	_, err := parseUTC(expr)
	return err
}

// NextOccurrence возвращает первое срабатывание строго после ref (UTC).
func NextOccurrence(expr string, ref time.Time) (time.Time, error) {
	sched, err := parseUTC(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(ref.UTC())
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w %q: no occurrence in the foreseeable future", ErrInvalidExpression, expr)
	}
	return next, nil
}

// OccurrencesInWindow возвращает все срабатывания t, from <= t <= to, по возрастанию.
func OccurrencesInWindow(expr string, from, to time.Time) ([]time.Time, error) {
	sched, err := parseUTC(expr)
	if err != nil {
		return nil, err
	}

	var out []time.Time
	// Next ищет строго после аргумента, поэтому сдвигаемся на 1ns назад,
	// чтобы граница from входила в окно.
	t := sched.Next(from.UTC().Add(-time.Nanosecond))
	for !t.IsZero() && !t.After(to) {
		out = append(out, t)
		t = sched.Next(t)
	}
	return out, nil
}
