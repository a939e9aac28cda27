package postcode

// Event — один принятый байт: код, монотонное время захвата (мс с загрузки)
// и разница с предыдущим учтённым кодом. Создаётся в цикле чтения и больше не меняется.
type Event struct {
	Code     Code
	Captured uint32
	Delta    uint32
}

// Record — опубликованное событие вместе с итоговой строкой; отдаётся журналу.
type Record struct {
	Device      string // имя устройства; пусто при единственном порте
	Event       Event
	Time        string // восстановленное HH:MM:SS.mmm, пусто без часов
	Description string
	Text        string
}
