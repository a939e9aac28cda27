// bpc-gw — шлюз BIOS POST-кодов: читает коды хоста с последовательного порта,
// восстанавливает время их приёма и публикует строки событий.
//
// Использование:
//
//	bpc-gw run -c bpc-gw.yml          — чтение порта до SIGINT/SIGTERM
//	bpc-gw selfcheck                  — сравнение часов (блокирует ~10 с)
//	bpc-gw codes                      — таблица описаний и игнорируемые коды
//	bpc-gw format boot.capture        — повтор записанной загрузки
//	bpc-gw journal                    — коды последней загрузки из журнала
package main

import (
	"os"

	"github.com/shiwa/bpc-gw/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
